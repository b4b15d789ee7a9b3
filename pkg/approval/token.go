package approval

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// approvalClaims carries an Approval record as a signed JWT, letting an
// approval issued by one control-plane instance be presented to another
// without a shared database lookup. Grounded on this codebase's
// pkg/identity.IdentityClaims (RegisteredClaims embedding), narrowed to
// HMAC signing since approval grants are issued and verified by the same
// control plane rather than across an identity federation.
type approvalClaims struct {
	jwt.RegisteredClaims
	ApprovedBy string  `json:"approvedBy"`
	Scope      []Scope `json:"scope"`
	PatchHash  string  `json:"patchHash,omitempty"`
	Comment    string  `json:"comment,omitempty"`
}

// EncodeToken signs approval as a JWT valid for ttl, using key as the
// HS256 secret. The run ID goes in the subject claim and approvedAt in
// issued-at, so a decoded token round-trips to an equivalent Approval.
func EncodeToken(approval Approval, key []byte, ttl time.Duration) (string, error) {
	now := approval.ApprovedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	claims := approvalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   approval.RunID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "corectl/approval",
		},
		ApprovedBy: approval.ApprovedBy,
		Scope:      approval.Scope,
		PatchHash:  approval.PatchHash,
		Comment:    approval.Comment,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("approval: sign token: %w", err)
	}
	return signed, nil
}

// DecodeToken verifies tokenString's signature against key and returns
// the Approval it carries. An expired or malformed token is rejected by
// jwt.ParseWithClaims before this function ever sees its claims.
func DecodeToken(tokenString string, key []byte) (Approval, error) {
	var claims approvalClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("approval: unexpected signing method %v", token.Header["alg"])
		}
		return key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Approval{}, fmt.Errorf("approval: parse token: %w", err)
	}

	approvedAt := time.Time{}
	if claims.IssuedAt != nil {
		approvedAt = claims.IssuedAt.Time.UTC()
	}
	return Approval{
		RunID:      claims.Subject,
		ApprovedAt: approvedAt,
		ApprovedBy: claims.ApprovedBy,
		Scope:      claims.Scope,
		PatchHash:  claims.PatchHash,
		Comment:    claims.Comment,
	}, nil
}
