package model

// Identity is the acting user of a request or operation.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// IsAnonymous reports whether the identity is missing.
func (i *Identity) IsAnonymous() bool {
	return i == nil || i.ID == ""
}
