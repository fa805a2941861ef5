package model

// status values carried on CHANGE_USER_STATUS
const (
	StatusOnline  = "ONLINE"
	StatusOffline = "OFFLINE"
)

// location reported by clients that derive their status from the page they show
const LocationDashboard = "DASHBOARD"

const (
	UserTableName    = "users"
	ContactTableName = "contacts"
)

// Profile is what the core reads about a user. The contact graph is owned
// by the user directory and only read here.
type Profile struct {
	Username    string   `json:"username"`
	ContactList []string `json:"contactList"`
}

// OnlineStatus answers a presence query for one user.
type OnlineStatus struct {
	Username     string `json:"username"`
	OnlineStatus bool   `json:"onlineStatus"`
}

func StatusForLocation(location string) string {
	if location == LocationDashboard {
		return StatusOnline
	}
	return StatusOffline
}
