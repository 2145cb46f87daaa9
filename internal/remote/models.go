package remote

import (
	"github.com/golang-jwt/jwt"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

// AuthenticationRequest is the body of POST /client/auth
type AuthenticationRequest struct {
	APIKey string        `json:"apiKey"`
	Target domain.Target `json:"target"`
}

// AuthenticationResponse carries the signed token
type AuthenticationResponse struct {
	AuthToken string `json:"authToken"`
}

// tokenClaims are the claims the backend embeds in the auth token
type tokenClaims struct {
	jwt.StandardClaims
	Environment           string `json:"environment"`
	EnvironmentIdentifier string `json:"environmentIdentifier"`
	ClusterIdentifier     string `json:"clusterIdentifier"`
	AccountID             string `json:"accountID"`
	Organization          string `json:"organization"`
	Project               string `json:"project"`
}

// authInfoFromToken reads the claims without verifying the signature;
// the token is only ever presented back to the issuer.
func authInfoFromToken(token string) (domain.AuthInfo, error) {
	var claims tokenClaims
	if _, _, err := new(jwt.Parser).ParseUnverified(token, &claims); err != nil {
		return domain.AuthInfo{}, err
	}

	info := domain.AuthInfo{
		Environment:           claims.Environment,
		EnvironmentIdentifier: claims.EnvironmentIdentifier,
		Cluster:               claims.ClusterIdentifier,
		Account:               claims.AccountID,
		Organization:          claims.Organization,
		Project:               claims.Project,
		Token:                 token,
	}
	if info.EnvironmentIdentifier == "" {
		info.EnvironmentIdentifier = info.Environment
	}
	if info.Cluster == "" {
		info.Cluster = "1"
	}
	return info, nil
}
