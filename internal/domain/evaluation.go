package domain

import (
	"fmt"
)

// Kind tags the type carried by an evaluation value
type Kind string

const (
	KindBoolean Kind = "boolean"
	KindString  Kind = "string"
	KindInt     Kind = "int"
	KindNumber  Kind = "number"
	KindJSON    Kind = "json"
)

// Evaluation is the result of one flag for one target.
// Values are replaced wholesale, never mutated in place.
type Evaluation struct {
	Flag       string `json:"flag"`
	Identifier string `json:"identifier"`
	Kind       Kind   `json:"kind"`
	Value      any    `json:"value"`
}

// Variation pairs an identifier with the value it serves
type Variation struct {
	Identifier string `json:"identifier"`
	Value      string `json:"value"`
	Name       string `json:"name,omitempty"`
}

// FeatureConfig is flag definition metadata used to correlate analytics
type FeatureConfig struct {
	Feature      string      `json:"feature"`
	Environment  string      `json:"environment"`
	Project      string      `json:"project"`
	Kind         Kind        `json:"kind"`
	State        string      `json:"state"`
	Version      int64       `json:"version"`
	OffVariation string      `json:"offVariation"`
	DefaultServe string      `json:"defaultServe,omitempty"`
	Variations   []Variation `json:"variations"`
}

// AuthInfo is the immutable outcome of a successful authentication
type AuthInfo struct {
	Environment           string
	EnvironmentIdentifier string
	Cluster               string
	Account               string
	Organization          string
	Project               string
	Token                 string
}

// Target is the subject flags are evaluated against
type Target struct {
	Identifier string         `json:"identifier"`
	Name       string         `json:"name"`
	Private    bool           `json:"anonymous,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Valid reports whether the target can be sent to the backend
func (t Target) Valid() bool {
	return t.Identifier != ""
}

// Scope identifies one (environment, target) pair and the cluster serving it.
// Environment is the UUID the remote calls take; EnvironmentIdentifier keys
// the cache.
type Scope struct {
	Environment           string
	EnvironmentIdentifier string
	Target                Target
	Cluster               string
}

// CacheKey returns the cache key for the scope
func (s Scope) CacheKey() string {
	return CacheKey(s.EnvironmentIdentifier, s.Target.Identifier)
}

// CacheKey joins an environment and a target identifier
func CacheKey(environment, target string) string {
	return fmt.Sprintf("%s_%s", environment, target)
}
