package payment

import "strconv"

// Canonical is the internal bucket a gateway status code falls into.
type Canonical string

const (
	Created   Canonical = "created"
	Pending   Canonical = "pending"
	Approved  Canonical = "approved"
	Rejected  Canonical = "rejected"
	Cancelled Canonical = "cancelled"
	Unknown   Canonical = "unknown"
)

const (
	CodeCreated        = "1"
	CodeApproved       = "200"
	CodeApprovedLegacy = "2"
)

// MapStatus never fails: anything it does not recognise is Unknown.
func MapStatus(code string) Canonical {
	switch code {
	case CodeCreated:
		return Created
	case CodeApprovedLegacy:
		return Approved
	case "3":
		return Rejected
	case "4":
		return Cancelled
	}

	if len(code) != 3 {
		return Unknown
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return Unknown
	}

	switch {
	case n >= 100 && n < 200:
		return Pending
	case n >= 200 && n < 300:
		return Approved
	case n >= 300 && n < 400:
		return Rejected
	case n >= 400 && n < 500:
		return Cancelled
	}
	return Unknown
}

// IsTerminalSuccess reports whether code is any approval variant. Once
// stored, such a payment accepts no further status changes.
func IsTerminalSuccess(code string) bool {
	return MapStatus(code) == Approved
}

func (c Canonical) IsTerminal() bool {
	return c == Approved || c == Rejected || c == Cancelled
}

// Normalize turns a gateway status into the one we store. Only the legacy
// approval "2" is rewritten (to "200"); every other code is kept verbatim.
func Normalize(code, text string) Status {
	canonical := MapStatus(code)
	if code == CodeApprovedLegacy {
		code = CodeApproved
	}
	if text == "" {
		text = string(canonical)
	}
	return Status{Code: code, Text: text}
}

func CreatedStatus() Status {
	return Status{Code: CodeCreated, Text: string(Created)}
}
