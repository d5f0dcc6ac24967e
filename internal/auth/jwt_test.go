package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"timesheet-service/internal/model"
)

func TestIssueAndParse(t *testing.T) {
	parser := NewParser("secret")
	userID := uuid.New()
	employeeID := uuid.New()

	token, err := parser.Issue(userID, model.UserRoleEmployee, &employeeID, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := parser.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.UserID != userID || claims.Role != model.UserRoleEmployee {
		t.Errorf("claims = %+v", claims)
	}
	if claims.EmployeeID == nil || *claims.EmployeeID != employeeID {
		t.Errorf("EmployeeID = %v, want %s", claims.EmployeeID, employeeID)
	}
	if claims.Subject != userID.String() {
		t.Errorf("Subject = %q", claims.Subject)
	}
}

func TestParseRejects(t *testing.T) {
	parser := NewParser("secret")
	userID := uuid.New()

	wrongSecret, _ := NewParser("other").Issue(userID, model.UserRoleAdmin, nil, time.Hour)
	expired, _ := parser.Issue(userID, model.UserRoleAdmin, nil, -time.Minute)
	noUser, _ := parser.Issue(uuid.Nil, model.UserRoleAdmin, nil, time.Hour)
	wrongAlg, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: userID}).SignedString([]byte("secret"))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", wrongSecret},
		{"expired", expired},
		{"missing user", noUser},
		{"unexpected algorithm", wrongAlg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parser.Parse(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}
