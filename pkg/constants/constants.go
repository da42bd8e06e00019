package constants

type RecipientRole string

const (
	RoleGuest RecipientRole = "guest"
	RoleHost  RecipientRole = "host"
)
