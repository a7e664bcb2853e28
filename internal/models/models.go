// Package models holds the record types that flow through the donation
// pipeline: donations and their attachments, providers, candidate assets
// produced by validation, and stored inventory assets.
package models

import "time"

// Attachment is one donated image as listed on a donation record.
type Attachment struct {
	ID       string
	Type     string
	Filename string
	URL      string
}

// Provider is a carrier or eSIM program donations are matched against.
type Provider struct {
	ID          string
	Name        string
	SMDPDomains []string
	Renewable   bool
	// OrderDescending marks provider families whose upstream feed delivers
	// records newest first, so their chronological order is the reverse of
	// the order records are fetched in.
	OrderDescending  bool
	AutomaticRestock bool
	StockStatus      string
	PackageName      string
	Networks         []string
	DataGB           int
	DaysValid        int
}

// StockLow is the stock status that triggers automatic restocking.
const StockLow = "Low"

// NeedsRestock reports whether the restock job should issue eSIMs for p.
func (p Provider) NeedsRestock() bool {
	return p.AutomaticRestock && p.StockStatus == StockLow
}

// Donation is one donor submission as read from the record store.
type Donation struct {
	ID           string
	ProviderID   string
	ContactEmail string
	Attachments  []Attachment
}

// Candidate is a provisional inventory asset built from one attachment that
// passed every validation check.
type Candidate struct {
	DonationID   string
	AttachmentID string
	Filename     string
	ImageURL     string
	ProviderID   string
	Contact      string
	Image        []byte
	QRText       string
	QRSHA        string
	PhoneNumber  string
}

// Asset is a stored inventory record.
type Asset struct {
	ID           string
	OrderID      int64
	ProviderID   string
	DonationID   string
	QRSHA        string
	PhoneNumber  string
	ImageURL     string
	StorageKey   string
	ContactEmail string
	CreatedAt    time.Time
}

// Notice is a donor-facing message about a rejected or duplicate donation.
type Notice struct {
	DonationID     string   `json:"donation_id"`
	Contact        string   `json:"contact"`
	Reasons        []string `json:"reasons"`
	OriginalID     string   `json:"original_id,omitempty"`
	DifferentEmail bool     `json:"different_email,omitempty"`
}
