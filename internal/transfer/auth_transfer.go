package transfer

import "github.com/golang-jwt/jwt/v5"

// CustomClaims are carried by the dashboard session cookie.
type CustomClaims struct {
	Handle string `json:"handle"`
	jwt.RegisteredClaims
}

type LoginRequest struct {
	Identifier string `json:"identifier" form:"identifier"`
	Password   string `json:"password" form:"password"`
}

type OptionsUpdate struct {
	Service string `json:"service" form:"service"`
	Notify  *bool  `json:"notify" form:"notify"`
}
