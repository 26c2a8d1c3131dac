package org

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"hrflow/internal/domain/auth"
)

var (
	ErrDuplicateEmployee = errors.New("duplicate employee")
	ErrUnknownRole       = errors.New("unknown role")
)

// Directory is the read-mostly organization chart used for routing and login.
type Directory struct {
	mu               sync.RWMutex
	employees        map[string]Employee
	byEmail          map[string]string
	byName           map[string]string
	departments      map[string]Department
	headOfBusinessID string
}

func NewDirectory() *Directory {
	return &Directory{
		employees:   map[string]Employee{},
		byEmail:     map[string]string{},
		byName:      map[string]string{},
		departments: map[string]Department{},
	}
}

// LoadFile reads a YAML organization file. A missing path yields an empty directory.
func LoadFile(path string) (*Directory, error) {
	dir := NewDirectory()
	if strings.TrimSpace(path) == "" {
		return dir, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read org file: %w", err)
	}
	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse org file: %w", err)
	}
	if err := dir.Load(file); err != nil {
		return nil, err
	}
	return dir, nil
}

func (d *Directory) Load(file File) error {
	for _, dep := range file.Departments {
		d.AddDepartment(dep)
	}
	for _, emp := range file.Employees {
		if err := d.Add(emp); err != nil {
			return err
		}
	}
	d.mu.Lock()
	d.headOfBusinessID = file.HeadOfBusinessID
	d.mu.Unlock()
	return nil
}

func (d *Directory) AddDepartment(dep Department) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.departments[strings.ToLower(strings.TrimSpace(dep.Name))] = dep
}

// Add registers an employee. A plain password is hashed on the way in.
func (d *Directory) Add(emp Employee) error {
	emp.ID = strings.TrimSpace(emp.ID)
	if emp.ID == "" {
		return fmt.Errorf("employee id is required")
	}
	role, ok := auth.ParseRole(string(emp.Role))
	if !ok {
		if emp.Role != "" {
			return fmt.Errorf("%w %q for %s", ErrUnknownRole, emp.Role, emp.ID)
		}
		role = auth.RoleEmployee
	}
	emp.Role = role
	emp.Email = strings.ToLower(strings.TrimSpace(emp.Email))
	if emp.PasswordHash == "" && emp.Password != "" {
		hash, err := auth.HashPassword(emp.Password)
		if err != nil {
			return err
		}
		emp.PasswordHash = hash
	}
	emp.Password = ""

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.employees[emp.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEmployee, emp.ID)
	}
	d.employees[emp.ID] = emp
	if emp.Email != "" {
		d.byEmail[emp.Email] = emp.ID
	}
	if name := normalizeName(emp.Name); name != "" {
		d.byName[name] = emp.ID
	}
	return nil
}

func (d *Directory) Employee(id string) (Employee, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	emp, ok := d.employees[id]
	return emp, ok
}

func (d *Directory) EmployeeByName(name string) (Employee, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byName[normalizeName(name)]
	if !ok {
		return Employee{}, false
	}
	emp, ok := d.employees[id]
	return emp, ok
}

func (d *Directory) EmployeeByEmail(email string) (Employee, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return Employee{}, false
	}
	emp, ok := d.employees[id]
	return emp, ok
}

func (d *Directory) Department(name string) (Department, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dep, ok := d.departments[strings.ToLower(strings.TrimSpace(name))]
	return dep, ok
}

func (d *Directory) HeadOfBusiness() (Employee, bool) {
	d.mu.RLock()
	id := d.headOfBusinessID
	d.mu.RUnlock()
	if id != "" {
		return d.Employee(id)
	}
	admins := d.ByRole(auth.RoleAdmin)
	if len(admins) == 0 {
		return Employee{}, false
	}
	return admins[0], true
}

// Supervisor returns the direct supervisor, falling back to the department head.
func (d *Directory) Supervisor(employeeID string) (Employee, bool) {
	emp, ok := d.Employee(employeeID)
	if !ok {
		return Employee{}, false
	}
	if emp.SupervisorID != "" {
		if sup, ok := d.Employee(emp.SupervisorID); ok {
			return sup, true
		}
	}
	if dep, ok := d.Department(emp.Department); ok && dep.HeadID != "" && dep.HeadID != emp.ID {
		return d.Employee(dep.HeadID)
	}
	return Employee{}, false
}

func (d *Directory) IsSupervisorOf(supervisorID, employeeID string) bool {
	sup, ok := d.Supervisor(employeeID)
	return ok && sup.ID == supervisorID
}

// Reports lists the employees whose effective supervisor is supervisorID, ordered by id.
func (d *Directory) Reports(supervisorID string) []Employee {
	var out []Employee
	for _, emp := range d.Employees() {
		if emp.ID != supervisorID && d.IsSupervisorOf(supervisorID, emp.ID) {
			out = append(out, emp)
		}
	}
	return out
}

// EmailOf returns the address notifications are mailed to.
func (d *Directory) EmailOf(userID string) (string, bool) {
	emp, ok := d.Employee(userID)
	if !ok || emp.Email == "" {
		return "", false
	}
	return emp.Email, true
}

// ByRole lists employees holding role, ordered by id.
func (d *Directory) ByRole(role auth.Role) []Employee {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Employee
	for _, emp := range d.employees {
		if emp.Role == role {
			out = append(out, emp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Directory) Employees() []Employee {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Employee, 0, len(d.employees))
	for _, emp := range d.employees {
		out = append(out, emp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Directory) CredentialByEmail(_ context.Context, email string) (auth.Credential, bool) {
	emp, ok := d.EmployeeByEmail(email)
	if !ok {
		return auth.Credential{}, false
	}
	return auth.Credential{
		UserID:       emp.ID,
		Name:         emp.Name,
		Email:        emp.Email,
		Role:         emp.Role,
		PasswordHash: emp.PasswordHash,
	}, true
}

// Exists lets the auth middleware drop tokens for removed employees.
func (d *Directory) Exists(_ context.Context, userID string) bool {
	_, ok := d.Employee(userID)
	return ok
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
