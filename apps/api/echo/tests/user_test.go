package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/plantel/backend/core/user"
	testutil "github.com/plantel/backend/tests"
)

func Test_userApi_login(t *testing.T) {
	db.Reset()

	testutil.CreateUser(t, usrRepo, "Carmen Díaz", "carmen", "carmen@plantel.test", "LePass123!word", user.AdminRoles, true)
	testutil.CreateUser(t, usrRepo, "Old Timer", "oldtimer", "old@plantel.test", "LePass123!word", nil, false)

	tests := []httpTest{
		{
			name:     "login with username",
			body:     marchallObj(t, map[string]string{"username": "carmen", "password": "LePass123!word"}),
			wantCode: http.StatusOK,
		},
		{
			name:     "login with email",
			body:     marchallObj(t, map[string]string{"username": "carmen@plantel.test", "password": "LePass123!word"}),
			wantCode: http.StatusOK,
		},
		{
			name:     "wrong password fails",
			body:     marchallObj(t, map[string]string{"username": "carmen", "password": "nope"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "unknown user fails",
			body:     marchallObj(t, map[string]string{"username": "ghost", "password": "LePass123!word"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "deactivated account is rejected",
			body:     marchallObj(t, map[string]string{"username": "oldtimer", "password": "LePass123!word"}),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name:     "missing fields fail validation",
			body:     marchallObj(t, map[string]string{"username": "carmen"}),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode == http.StatusOK {
				var resp struct {
					Token string `json:"token"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshalling response: %v", err)
				}
				if resp.Token == "" {
					t.Error("expected a token")
				}
			} else if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			}
		})
	}
}

func Test_userApi_create(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin1", "admin@plantel.test", "LePass123!word", user.AdminRoles, true)
	clerk := testutil.CreateUser(t, usrRepo, "Clerk", "clerk1", "clerk@plantel.test", "LePass123!word", user.SecretaryRoles, true)

	newUsr := func(uname, email string, roles []string) []byte {
		return marchallObj(t, map[string]interface{}{
			"name":             "New Person",
			"username":         uname,
			"email":            email,
			"password":         "S3cur3P4ss!word",
			"password_confirm": "S3cur3P4ss!word",
			"roles":            roles,
		})
	}

	tests := []httpTest{
		{
			name:     "unauthenticated is rejected",
			body:     newUsr("person1", "p1@plantel.test", nil),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "non-admin is rejected",
			body:     newUsr("person1", "p1@plantel.test", nil),
			token:    getToken(t, clerk),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "admin creates user",
			body:     newUsr("person1", "p1@plantel.test", user.FinanceRoles),
			token:    getToken(t, admin),
			wantCode: http.StatusCreated,
		},
		{
			name:     "duplicate email is rejected",
			body:     newUsr("person2", "p1@plantel.test", nil),
			token:    getToken(t, admin),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid role is rejected",
			body:     newUsr("person3", "p3@plantel.test", []string{"superhero:"}),
			token:    getToken(t, admin),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/users/register", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_tokenRefresh(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin1", "admin@plantel.test", "LePass123!word", user.AdminRoles, true)

	req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", getToken(t, admin))
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected a refreshed token")
	}
}
