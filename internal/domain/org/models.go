package org

import "hrflow/internal/domain/auth"

type Employee struct {
	ID           string             `yaml:"id" json:"id"`
	Name         string             `yaml:"name" json:"name"`
	Email        string             `yaml:"email" json:"email"`
	Department   string             `yaml:"department" json:"department"`
	Role         auth.Role          `yaml:"role" json:"role"`
	SupervisorID string             `yaml:"supervisorId" json:"supervisorId,omitempty"`
	Password     string             `yaml:"password" json:"-"`
	PasswordHash string             `yaml:"passwordHash" json:"-"`
	Balances     map[string]float64 `yaml:"balances" json:"-"`
}

type Department struct {
	Name        string `yaml:"name" json:"name"`
	HeadID      string `yaml:"headId" json:"headId,omitempty"`
	HRPartnerID string `yaml:"hrPartnerId" json:"hrPartnerId,omitempty"`
}

// File is the on-disk shape of the organization directory.
type File struct {
	HeadOfBusinessID string       `yaml:"headOfBusinessId"`
	Departments      []Department `yaml:"departments"`
	Employees        []Employee   `yaml:"employees"`
}
