package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/devpayr/devpayr-go/internal/injectable"
)

func seg(id string) string { return url.PathEscape(id) }

// ProjectService manages projects (API-key mode).
type ProjectService struct{ c *HTTPClient }

func (s *ProjectService) List(ctx context.Context, opts ...RequestOption) (Response, error) {
	return s.c.Get(ctx, "projects", opts...)
}

func (s *ProjectService) Get(ctx context.Context, projectID string) (Response, error) {
	return s.c.Get(ctx, "project/"+seg(projectID))
}

func (s *ProjectService) Create(ctx context.Context, data map[string]interface{}) (Response, error) {
	return s.c.Post(ctx, "project", data)
}

func (s *ProjectService) Update(ctx context.Context, projectID string, data map[string]interface{}) (Response, error) {
	return s.c.Put(ctx, "project/"+seg(projectID), data)
}

func (s *ProjectService) Delete(ctx context.Context, projectID string) (Response, error) {
	return s.c.Delete(ctx, "project/"+seg(projectID))
}

// LicenseService manages the licenses of a project.
type LicenseService struct{ c *HTTPClient }

func (s *LicenseService) List(ctx context.Context, projectID string, opts ...RequestOption) (Response, error) {
	return s.c.Get(ctx, fmt.Sprintf("project/%s/licenses", seg(projectID)), opts...)
}

func (s *LicenseService) Show(ctx context.Context, projectID, licenseID string) (Response, error) {
	return s.c.Get(ctx, fmt.Sprintf("project/%s/licenses/%s", seg(projectID), seg(licenseID)))
}

func (s *LicenseService) Create(ctx context.Context, projectID string, data map[string]interface{}) (Response, error) {
	return s.c.Post(ctx, fmt.Sprintf("project/%s/licenses", seg(projectID)), data)
}

func (s *LicenseService) Revoke(ctx context.Context, projectID, licenseID string) (Response, error) {
	return s.c.Post(ctx, fmt.Sprintf("project/%s/licenses/%s/revoke", seg(projectID), seg(licenseID)), nil)
}

func (s *LicenseService) Reactivate(ctx context.Context, projectID, licenseID string) (Response, error) {
	return s.c.Post(ctx, fmt.Sprintf("project/%s/licenses/%s/reactivate", seg(projectID), seg(licenseID)), nil)
}

func (s *LicenseService) Delete(ctx context.Context, projectID, licenseID string) (Response, error) {
	return s.c.Delete(ctx, fmt.Sprintf("project/%s/licenses/%s", seg(projectID), seg(licenseID)))
}

// DomainService manages the domains a project is allowed on.
type DomainService struct{ c *HTTPClient }

func (s *DomainService) List(ctx context.Context, projectID string, opts ...RequestOption) (Response, error) {
	return s.c.Get(ctx, fmt.Sprintf("project/%s/domains", seg(projectID)), opts...)
}

func (s *DomainService) Show(ctx context.Context, projectID, domainID string) (Response, error) {
	return s.c.Get(ctx, fmt.Sprintf("project/%s/domain/%s", seg(projectID), seg(domainID)))
}

func (s *DomainService) Create(ctx context.Context, projectID string, data map[string]interface{}) (Response, error) {
	return s.c.Post(ctx, fmt.Sprintf("project/%s/domains", seg(projectID)), data)
}

func (s *DomainService) Update(ctx context.Context, projectID, domainID string, data map[string]interface{}) (Response, error) {
	return s.c.Put(ctx, fmt.Sprintf("project/%s/domain/%s", seg(projectID), seg(domainID)), data)
}

// Delete uses the plural collection path, matching the authority's routes.
func (s *DomainService) Delete(ctx context.Context, projectID, domainID string) (Response, error) {
	return s.c.Delete(ctx, fmt.Sprintf("project/%s/domains/%s", seg(projectID), seg(domainID)))
}

// InjectableService manages injectables and streams them for a license.
type InjectableService struct{ c *HTTPClient }

func (s *InjectableService) List(ctx context.Context, projectID string, opts ...RequestOption) (Response, error) {
	return s.c.Get(ctx, fmt.Sprintf("project/%s/injectables", seg(projectID)), opts...)
}

func (s *InjectableService) Show(ctx context.Context, projectID, injectableID string) (Response, error) {
	return s.c.Get(ctx, fmt.Sprintf("project/%s/injectables/%s", seg(projectID), seg(injectableID)))
}

func (s *InjectableService) Create(ctx context.Context, projectID string, data map[string]interface{}) (Response, error) {
	return s.c.Post(ctx, fmt.Sprintf("project/%s/injectables", seg(projectID)), data)
}

func (s *InjectableService) Update(ctx context.Context, projectID, injectableID string, data map[string]interface{}) (Response, error) {
	return s.c.Put(ctx, fmt.Sprintf("project/%s/injectables/%s", seg(projectID), seg(injectableID)), data)
}

func (s *InjectableService) Delete(ctx context.Context, projectID, injectableID string) (Response, error) {
	return s.c.Delete(ctx, fmt.Sprintf("project/%s/injectables/%s", seg(projectID), seg(injectableID)))
}

// Stream returns the encrypted injectables issued to the configured license.
func (s *InjectableService) Stream(ctx context.Context, opts ...RequestOption) ([]injectable.Injectable, Response, error) {
	resp, err := s.c.Get(ctx, "injectable/stream", opts...)
	if err != nil {
		return nil, nil, err
	}
	items, err := ExtractInjectables(resp)
	if err != nil {
		return nil, resp, err
	}
	return items, resp, nil
}

// ExtractInjectables reads data.injectables, or data itself when it is a
// list.
func ExtractInjectables(resp Response) ([]injectable.Injectable, error) {
	var source interface{}
	switch data := resp["data"].(type) {
	case []interface{}:
		source = data
	case map[string]interface{}:
		source = data["injectables"]
	}
	if source == nil {
		return nil, nil
	}

	encoded, err := json.Marshal(source)
	if err != nil {
		return nil, err
	}
	var items []injectable.Injectable
	if err := json.Unmarshal(encoded, &items); err != nil {
		return nil, fmt.Errorf("decode injectables: %w", err)
	}
	return items, nil
}

// PaymentStatus is the authority's paid/unpaid verdict.
type PaymentStatus struct {
	Message string      `json:"message,omitempty"`
	Data    PaymentData `json:"data"`
	// Raw is the full decoded response.
	Raw Response `json:"-"`
}

// PaymentData is the data member of a payment check.
type PaymentData struct {
	HasPaid     bool                    `json:"has_paid"`
	Injectables []injectable.Injectable `json:"injectables,omitempty"`
}

// PaymentService checks whether a project has been paid for.
type PaymentService struct{ c *HTTPClient }

// CheckWithLicenseKey checks the project bound to the configured license.
func (s *PaymentService) CheckWithLicenseKey(ctx context.Context, opts ...RequestOption) (*PaymentStatus, error) {
	return s.check(ctx, "project/has-paid", opts...)
}

// CheckWithAPIKey checks a project by ID using the configured API key.
func (s *PaymentService) CheckWithAPIKey(ctx context.Context, projectID string, opts ...RequestOption) (*PaymentStatus, error) {
	return s.check(ctx, fmt.Sprintf("project/%s/has-paid", seg(projectID)), opts...)
}

func (s *PaymentService) check(ctx context.Context, path string, opts ...RequestOption) (*PaymentStatus, error) {
	resp, err := s.c.Do(ctx, http.MethodPost, path, map[string]interface{}{}, opts...)
	if err != nil {
		return nil, err
	}

	status := &PaymentStatus{Raw: resp}
	if msg, ok := resp["message"].(string); ok {
		status.Message = msg
	}
	if data := resp.Data(); data != nil {
		if paid, ok := data["has_paid"].(bool); ok {
			status.Data.HasPaid = paid
		}
	}
	items, err := ExtractInjectables(resp)
	if err != nil {
		return nil, err
	}
	status.Data.Injectables = items
	return status, nil
}

// Services bundles the resource services over one client.
type Services struct {
	Projects    *ProjectService
	Licenses    *LicenseService
	Domains     *DomainService
	Injectables *InjectableService
	Payments    *PaymentService
}

// NewServices wires every service to c.
func NewServices(c *HTTPClient) *Services {
	return &Services{
		Projects:    &ProjectService{c: c},
		Licenses:    &LicenseService{c: c},
		Domains:     &DomainService{c: c},
		Injectables: &InjectableService{c: c},
		Payments:    &PaymentService{c: c},
	}
}
