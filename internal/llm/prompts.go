package llm

import "fmt"

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// ComplianceExpertPersona is the system message for chunk review.
const ComplianceExpertPersona = "You are a compliance expert."

// AssistantPersona is the system message for question answering.
const AssistantPersona = "You are a helpful assistant for a compliance checklist generator application. " +
	"Provide concise and accurate information based on the processed documents."

const chunkPromptTemplate = `Review the following section for critical compliance-related information, especially focusing on regulatory requirements, cybersecurity policies, audit guidelines, and reporting standards.

Provide the output in a detailed, structured checklist format with headings and sub-headings, including but not limited to Governance & Risk Management, Data Security & Protection, Monitoring & Detection, Incident Response & Recovery, and Resilience & Evolution. Use bullet points for each specific compliance requirement.

Here's the section to review:

%s

Summarize the compliance requirements mentioned and provide a checklist that looks like this:

Governance & Risk Management:
- Establish clear cybersecurity roles and responsibilities for senior management and all employees.
- Document and implement a cybersecurity and cyber resilience policy approved by the Board/Partners/Proprietor.
- Develop a Cyber Risk Management Framework to continuously identify, analyze, and monitor cyber risks.

Data Security & Protection:
- Implement an Authentication and Access Control Policy and ensure effective logging of all access.
- Design and implement network segmentation to restrict access to sensitive information.

Continue in this format for all the relevant sections based on the content provided.`

// ChunkPrompt embeds a document chunk into the checklist instructions.
func ChunkPrompt(chunk string) string {
	return fmt.Sprintf(chunkPromptTemplate, chunk)
}
