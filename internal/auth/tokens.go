// Package auth issues and verifies the bearer tokens used by teachers and
// their students.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims identify the caller. Subject is the teacher id for teacher tokens
// and the student id for student tokens.
type Claims struct {
	jwt.RegisteredClaims
	Role           Role   `json:"role"`
	TeacherID      string `json:"teacher_id"`
	ImpersonatedBy string `json:"impersonated_by,omitempty"`
}

// Principal is the verified identity of a request.
type Principal struct {
	Role           Role
	TeacherID      string
	StudentID      string
	ImpersonatedBy string
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("auth secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

func (i *Issuer) IssueTeacherToken(teacherID string) (string, error) {
	if strings.TrimSpace(teacherID) == "" {
		return "", fmt.Errorf("teacher id is required")
	}
	return i.sign(teacherID, Claims{Role: RoleTeacher, TeacherID: teacherID}, i.ttl)
}

func (i *Issuer) IssueStudentToken(teacherID, studentID string) (string, error) {
	if strings.TrimSpace(teacherID) == "" || strings.TrimSpace(studentID) == "" {
		return "", fmt.Errorf("teacher and student ids are required")
	}
	return i.sign(studentID, Claims{Role: RoleStudent, TeacherID: teacherID}, i.ttl)
}

// IssueCustomToken lets a teacher act as one of their students. The token is
// short lived and records who is impersonating.
func (i *Issuer) IssueCustomToken(teacherID, studentID string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > time.Hour {
		ttl = time.Hour
	}
	if strings.TrimSpace(teacherID) == "" || strings.TrimSpace(studentID) == "" {
		return "", fmt.Errorf("teacher and student ids are required")
	}
	return i.sign(studentID, Claims{Role: RoleStudent, TeacherID: teacherID, ImpersonatedBy: teacherID}, ttl)
}

func (i *Issuer) sign(subject string, claims Claims, ttl time.Duration) (string, error) {
	now := i.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify checks the signature, expiry and issuer of raw and returns the caller.
func (i *Issuer) Verify(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrInvalidToken
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Principal{}, ErrExpiredToken
	case err != nil:
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	p := Principal{Role: claims.Role, TeacherID: claims.TeacherID, ImpersonatedBy: claims.ImpersonatedBy}
	switch claims.Role {
	case RoleTeacher:
		if claims.Subject == "" || claims.Subject != claims.TeacherID {
			return Principal{}, ErrInvalidToken
		}
	case RoleStudent:
		if claims.Subject == "" || claims.TeacherID == "" {
			return Principal{}, ErrInvalidToken
		}
		p.StudentID = claims.Subject
	default:
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}

// CanActAsStudent reports whether p may act on behalf of studentID of teacherID.
func (p Principal) CanActAsStudent(teacherID, studentID string) bool {
	return p.Role == RoleStudent && p.TeacherID == teacherID && p.StudentID == studentID
}
