package model

// Recipient is one outreach target and the attributes templates can refer to.
type Recipient struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Username  string `json:"username,omitempty"`
	URL       string `json:"url,omitempty"`
	Bio       string `json:"bio,omitempty"`
	Followers *int   `json:"followers,omitempty"`
	Following *int   `json:"following,omitempty"`
}

// Credentials is the session token set handed to the delivery actuator.
type Credentials struct {
	Cookies   map[string]string `json:"cookies,omitempty"`
	UserAgent string            `json:"userAgent,omitempty"`
}

func (c Credentials) Empty() bool {
	return len(c.Cookies) == 0
}
