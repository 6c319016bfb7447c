package models

import (
	"fmt"
	"strings"
)

// Region is an uppercase country code used to pick network egress.
type Region string

const (
	RegionKR Region = "KR"
	RegionUS Region = "US"
)

// Device is the layout class a page is rendered for.
type Device string

const (
	DevicePC     Device = "pc"
	DeviceMobile Device = "mobile"
)

// EnvironmentProfile is a region and device pair, optionally extended with account-state flags.
type EnvironmentProfile struct {
	ID             string `json:"id" yaml:"id"`
	Region         Region `json:"region" yaml:"region"`
	Device         Device `json:"device" yaml:"device"`
	LoggedIn       bool   `json:"logged_in" yaml:"logged_in"`
	CartPopulated  bool   `json:"cart_populated" yaml:"cart_populated"`
	CookiesCleared bool   `json:"cookies_cleared" yaml:"cookies_cleared"`
}

// Key returns the profile ID, or a label derived from its fields
func (p EnvironmentProfile) Key() string {
	if p.ID != "" {
		return p.ID
	}
	parts := []string{string(p.Region), string(p.Device)}
	if p.LoggedIn {
		parts = append(parts, "member")
	}
	if p.CartPopulated {
		parts = append(parts, "cart")
	}
	if p.CookiesCleared {
		parts = append(parts, "nocookies")
	}
	return strings.Join(parts, "_")
}

// IsMobile returns true for mobile layouts
func (p EnvironmentProfile) IsMobile() bool {
	return p.Device == DeviceMobile
}

// Validate checks region and device
func (p EnvironmentProfile) Validate() error {
	if len(p.Region) != 2 || strings.ToUpper(string(p.Region)) != string(p.Region) {
		return fmt.Errorf("profile %s: region %q must be a two-letter uppercase code", p.Key(), p.Region)
	}
	if p.Device != DevicePC && p.Device != DeviceMobile {
		return fmt.Errorf("profile %s: device %q must be pc or mobile", p.Key(), p.Device)
	}
	return nil
}

// DefaultProfiles returns the KR/US x pc/mobile grid
func DefaultProfiles() []EnvironmentProfile {
	var profiles []EnvironmentProfile
	for _, region := range []Region{RegionKR, RegionUS} {
		for _, device := range []Device{DevicePC, DeviceMobile} {
			p := EnvironmentProfile{Region: region, Device: device}
			p.ID = p.Key()
			profiles = append(profiles, p)
		}
	}
	return profiles
}
