package funcapp

import (
	"fmt"
	"strings"
	"time"
)

// Method selects how application code reaches the function app.
type Method string

const (
	MethodZip    Method = "zip"    // az functionapp deployment source config-zip
	MethodBundle Method = "bundle" // core-tools publish inside a container
)

// ParseMethod maps user input onto a Method. Empty input selects MethodZip.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(MethodZip):
		return MethodZip, nil
	case string(MethodBundle), "core-tools":
		return MethodBundle, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Deployment status values.
const (
	StatusPending   = "pending"
	StatusDeploying = "deploying"
	StatusWaiting   = "waiting"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Deployment records a single attempt to deploy a function app.
type Deployment struct {
	ID            string     `gorm:"primaryKey" json:"id"`
	AppName       string     `json:"app_name"`
	ResourceGroup string     `json:"resource_group"`
	Method        Method     `json:"method"`
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Request describes a deployment to perform.
type Request struct {
	Name           string
	ResourceGroup  string
	Method         Method
	Location       string // when set, the resource group is created first
	WaitForTrigger bool
	WaitTimeout    time.Duration // zero waits until the trigger shows up
}

func (r Request) validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: function app name is required", ErrInvalidRequest)
	}
	if r.ResourceGroup == "" {
		return fmt.Errorf("%w: resource group is required", ErrInvalidRequest)
	}
	if r.WaitTimeout < 0 {
		return fmt.Errorf("%w: negative wait timeout", ErrInvalidRequest)
	}
	return nil
}
