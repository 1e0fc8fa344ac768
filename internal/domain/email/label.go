package email

// Label is a user label resolved against the provider.
type Label struct {
	ID   string
	Name string
}

func (l Label) IsResolved() bool {
	return l.ID != ""
}

func (l Label) String() string {
	if l.Name != "" {
		return l.Name
	}
	return l.ID
}
