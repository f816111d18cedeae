// Package auth signs users in against the backend users collection, keeps
// the CLI credentials on disk and guards the BFF routes.
package auth

// UsersCollection is the backend auth collection.
const UsersCollection = "users"

// DefaultSubscription is assigned to new accounts.
const DefaultSubscription = "freemium"

// User is a record of the users collection.
type User struct {
	ID              string `json:"id"`
	CollectionID    string `json:"collectionId,omitempty"`
	CollectionName  string `json:"collectionName,omitempty"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	EmailVisibility bool   `json:"emailVisibility"`
	Verified        bool   `json:"verified"`
	Name            string `json:"name"`
	Avatar          string `json:"avatar,omitempty"`
	// The backend field is spelled "subcription".
	Subscription string `json:"subcription,omitempty"`
	Created      string `json:"created,omitempty"`
	Updated      string `json:"updated,omitempty"`
}

// DisplayName returns the name, falling back to the username and email.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return ""
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}

// Tier returns the subscription tier, defaulting to freemium.
func (u *User) Tier() string {
	if u == nil || u.Subscription == "" {
		return DefaultSubscription
	}
	return u.Subscription
}

// Session is the result of a successful sign-in.
type Session struct {
	Token string `json:"token"`
	User  *User  `json:"record"`
}
