package txref

import "strings"

// Intent marks whether a charge is a one-time purchase or belongs to a
// subscription. The intent is the prefix of every tx_ref sent to the provider.
type Intent string

const (
	IntentOneTime      Intent = "onetime"
	IntentSubscription Intent = "subscription"
)

// IsValid reports whether the value is a known Intent.
func (i Intent) IsValid() bool {
	return i == IntentOneTime || i == IntentSubscription
}

// Encode builds the provider-facing correlation reference "{intent}_{uuid}".
func Encode(intent Intent, id string) string {
	return string(intent) + "_" + id
}

// Decode splits a reference on the first underscore. The part before is the
// intent, everything after is the UUID (which may itself contain hyphens).
// Malformed or empty input yields zero values, never an error; callers fall
// through to secondary matching via embedded metadata.
func Decode(ref string) (Intent, string) {
	idx := strings.Index(ref, "_")
	if idx <= 0 || idx == len(ref)-1 {
		return "", ""
	}
	intent := Intent(ref[:idx])
	if !intent.IsValid() {
		return "", ""
	}
	return intent, ref[idx+1:]
}
