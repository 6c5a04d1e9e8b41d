package model

import "time"

type RoleType string

const (
	RoleUser   RoleType = "user"
	RoleDoctor RoleType = "doctor"
	RoleAdmin  RoleType = "admin"
)

func (r RoleType) Valid() bool {
	switch r {
	case RoleUser, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

type Avatar struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	DateOfBirth  *time.Time `json:"dateOfBirth,omitempty"`
	Address      string     `json:"address,omitempty"`
	PasswordHash string     `json:"-"`
	RoleType     RoleType   `json:"roleType"`
	Role         Ref[Role]  `json:"role"`
	Avatar       *Avatar    `json:"avatar,omitempty"`
	IsVerified   bool       `json:"isVerified"`
	IsLocked     bool       `json:"isLocked"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (u User) RefID() string { return u.ID }

// Role is an admin-defined bundle of permission codes layered on top of a RoleType.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (r Role) RefID() string { return r.ID }

type Hospital struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	Description string    `json:"description,omitempty"`
	Rating      float64   `json:"rating"`
	ReviewCount int       `json:"reviewCount"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (h Hospital) RefID() string { return h.ID }

type Specialty struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"isActive"`
}

func (s Specialty) RefID() string { return s.ID }

type Service struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Price           int64          `json:"price"`
	DurationMinutes int            `json:"durationMinutes"`
	Specialty       Ref[Specialty] `json:"specialty"`
	IsActive        bool           `json:"isActive"`
}

func (s Service) RefID() string { return s.ID }

// WorkingHours is one weekly window, "HH:MM" local clinic time, end exclusive.
type WorkingHours struct {
	Weekday time.Weekday `json:"weekday"`
	Start   string       `json:"start"`
	End     string       `json:"end"`
}

// Doctor is the professional profile attached to a user with RoleType doctor.
type Doctor struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Email           string         `json:"email,omitempty"`
	Hospital        Ref[Hospital]  `json:"hospital"`
	Specialty       Ref[Specialty] `json:"specialty"`
	ConsultationFee int64          `json:"consultationFee"`
	Bio             string         `json:"bio,omitempty"`
	WorkingHours    []WorkingHours `json:"workingHours"`
	IsActive        bool           `json:"isActive"`
}

func (d Doctor) RefID() string { return d.ID }

type Review struct {
	ID            string        `json:"id"`
	Type          string        `json:"type"`
	Hospital      Ref[Hospital] `json:"hospital"`
	AppointmentID string        `json:"appointmentId"`
	User          Ref[User]     `json:"user"`
	Rating        int           `json:"rating"`
	Comment       string        `json:"comment,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

func (r Review) RefID() string { return r.ID }

type Medication struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	GenericName  string    `json:"genericName,omitempty"`
	Form         string    `json:"form,omitempty"`
	Strength     string    `json:"strength,omitempty"`
	Manufacturer string    `json:"manufacturer,omitempty"`
	Description  string    `json:"description,omitempty"`
	UnitPrice    int64     `json:"unitPrice"`
	Stock        int       `json:"stock"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (m Medication) RefID() string { return m.ID }

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Link      string     `json:"link,omitempty"`
	IsRead    bool       `json:"isRead"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (n Notification) RefID() string { return n.ID }
