package answer

// RefusalText is the fixed reply for protected-characteristic queries.
const RefusalText = "I can't determine or infer a person's protected characteristics. " +
	"Please consult appropriate, consented records or escalate to a human agent."

// Refusal returns the fixed sensitive-attribute refusal. It carries no
// citations and always escalates.
func Refusal() *Result {
	return &Result{
		Response:      RefusalText,
		Citations:     []Citation{},
		Confidence:    0,
		RequiresHuman: true,
	}
}
