package api

import (
	"encoding/base64"
	"time"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/service"
)

type registrationView struct {
	ID            string    `json:"id"`
	UDID          string    `json:"udid"`
	CertificateID string    `json:"certificate_id,omitempty"`
	Name          string    `json:"name,omitempty"`
	Plan          string    `json:"plan"`
	Status        string    `json:"status"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
}

func newRegistrationView(r *models.Registration) registrationView {
	return registrationView{
		ID:            r.RegistrationID.String(),
		UDID:          r.UDID,
		CertificateID: r.CertificateID,
		Name:          r.Payload.String(models.PayloadFieldName),
		Plan:          r.Plan,
		Status:        string(r.Status),
		Enabled:       r.Enabled,
		CreatedAt:     r.CreatedAt,
	}
}

type packageView struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	DisplayName string     `json:"display_name"`
	Size        int64      `json:"size"`
	AppName     string     `json:"app_name"`
	BundleID    string     `json:"bundle_id"`
	Version     string     `json:"version"`
	Signed      bool       `json:"signed"`
	IPAURL      string     `json:"ipa_url,omitempty"`
	PlistURL    string     `json:"plist_url,omitempty"`
	SignedAt    *time.Time `json:"signed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newPackageView(p *models.Package) packageView {
	return packageView{
		ID:          p.PackageID.String(),
		Filename:    p.OriginalFilename,
		DisplayName: service.DisplayName(p),
		Size:        p.Size,
		AppName:     p.AppName,
		BundleID:    p.BundleID,
		Version:     p.Version,
		Signed:      p.IsSigned(),
		IPAURL:      p.IPAURL,
		PlistURL:    p.PlistURL,
		SignedAt:    p.SignedAt,
		CreatedAt:   p.CreatedAt,
	}
}

type installView struct {
	PackageID string `json:"package_id"`
	AppName   string `json:"app_name"`
	Link      string `json:"link"`
}

type downloadView struct {
	Registration registrationView `json:"registration"`
	KeyArchive   string           `json:"p12"`
	Profile      string           `json:"mobileprovision"`
	Password     string           `json:"password"`
	Signed       int              `json:"signed"`
	Skipped      int              `json:"skipped"`
	Installs     []installView    `json:"installs"`
}

func newDownloadView(d *service.Download) downloadView {
	v := downloadView{
		Registration: newRegistrationView(d.Registration),
		KeyArchive:   base64.StdEncoding.EncodeToString(d.KeyArchive),
		Profile:      base64.StdEncoding.EncodeToString(d.Profile),
		Password:     d.Password,
		Signed:       d.Signed,
		Skipped:      d.Skipped,
		Installs:     []installView{},
	}
	for _, i := range d.Installs {
		v.Installs = append(v.Installs, installView{PackageID: i.PackageID, AppName: i.AppName, Link: i.Link})
	}
	return v
}

type keyView struct {
	Code      string     `json:"code"`
	Plan      string     `json:"plan"`
	Used      bool       `json:"used"`
	CreatedAt time.Time  `json:"created_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

func newKeyView(k *models.ActivationKey) keyView {
	return keyView{Code: k.Code, Plan: k.Plan, Used: k.Used, CreatedAt: k.CreatedAt, UsedAt: k.UsedAt}
}

type keyStatsView struct {
	Plan   string `json:"plan"`
	Name   string `json:"name"`
	Total  int    `json:"total"`
	Used   int    `json:"used"`
	Unused int    `json:"unused"`
}
