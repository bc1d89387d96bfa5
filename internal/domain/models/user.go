package models

// User's model
type User struct {
	ID       string `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
	PassHash []byte `json:"-" db:"pass_hash"`
}
