package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// TourRequest asks the backend to book a showing.
type TourRequest struct {
	LeadID        string `json:"leadId"`
	PropertyID    string `json:"propertyId"`
	PreferredDate string `json:"preferredDate"`
	PreferredTime string `json:"preferredTime"`
	Notes         string `json:"notes,omitempty"`
}

// Applicant is the personal section of an application.
type Applicant struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Employment is the income section of an application.
type Employment struct {
	Employer     string `json:"employer,omitempty"`
	Position     string `json:"position,omitempty"`
	AnnualIncome int    `json:"annualIncome,omitempty"`
}

// ApplicationRequest submits a rental application.
type ApplicationRequest struct {
	LeadID         string     `json:"leadId"`
	PropertyID     string     `json:"propertyId"`
	PersonalInfo   Applicant  `json:"personalInfo"`
	EmploymentInfo Employment `json:"employmentInfo"`
}

// Interest levels for RecordInquiry.
const (
	InterestLow    = "LOW"
	InterestMedium = "MEDIUM"
	InterestHigh   = "HIGH"
)

type inquiry struct {
	PropertyID string `json:"propertyId"`
	Interest   string `json:"interest"`
	Notes      string `json:"notes,omitempty"`
}

// ScheduleTour books a tour and returns the backend tour ID.
func (c *Client) ScheduleTour(ctx context.Context, r TourRequest) (string, error) {
	if r.LeadID == "" || r.PropertyID == "" {
		return "", fmt.Errorf("schedule tour: lead and property are required")
	}
	var out struct {
		TourID string `json:"tourId"`
	}
	if err := c.do(ctx, http.MethodPost, "/tours/schedule", r, &out); err != nil {
		return "", err
	}
	return out.TourID, nil
}

// SubmitApplication files an application and returns its ID.
func (c *Client) SubmitApplication(ctx context.Context, r ApplicationRequest) (string, error) {
	if r.LeadID == "" || r.PropertyID == "" {
		return "", fmt.Errorf("submit application: lead and property are required")
	}
	var out struct {
		ApplicationID string `json:"applicationId"`
	}
	if err := c.do(ctx, http.MethodPost, "/applications/submit", r, &out); err != nil {
		return "", err
	}
	return out.ApplicationID, nil
}

// RecordInquiry notes that a lead asked about a property.
func (c *Client) RecordInquiry(ctx context.Context, leadID, propertyID, interest, notes string) error {
	if interest == "" {
		interest = InterestMedium
	}
	body := inquiry{PropertyID: propertyID, Interest: interest, Notes: notes}
	return c.do(ctx, http.MethodPost, "/leads/"+url.PathEscape(leadID)+"/inquiries", body, nil)
}
