package tests

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/plantel/backend/core"
	"github.com/plantel/backend/core/tuition"
	"github.com/plantel/backend/core/user"
	testutil "github.com/plantel/backend/tests"
)

func Test_tuitionApi_generate(t *testing.T) {
	db.Reset()

	finance := testutil.CreateUser(t, usrRepo, "Caja", "cajera1", "caja@plantel.test", "LePass123!word", user.FinanceRoles, true)
	clerk := testutil.CreateUser(t, usrRepo, "Clerk", "clerk1", "clerk@plantel.test", "LePass123!word", user.SecretaryRoles, true)
	p := testutil.CreatePeriod(t, periodRepo, "2024-2025", true)
	testutil.SetPaymentConfig(t, configRepo, "50", "40", "0.10", 5)
	testutil.CreateStudent(t, studentRepo, "Ana", "Sra. Pérez", "perez@plantel.test", true)
	testutil.CreateStudent(t, studentRepo, "Luis", "Sr. Gómez", "gomez@plantel.test", true)
	testutil.CreateStudent(t, studentRepo, "Egresado", "", "", false)

	body := marchallObj(t, map[string]interface{}{"annoEscolarID": p.ID, "mes": 9})

	t.Run("secretary cannot generate", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/mensualidades/generar", getToken(t, clerk), body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("finance generates one entry per active student", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/mensualidades/generar", getToken(t, finance), body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var res tuition.GenerateResult
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if res.Created != 2 || res.Skipped != 0 {
			t.Errorf("created/skipped = %d/%d; want 2/0", res.Created, res.Skipped)
		}
		if res.Year != 2024 {
			t.Errorf("year = %d; want 2024", res.Year)
		}
	})

	t.Run("rerun skips existing entries", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/mensualidades/generar", getToken(t, finance), body)
		app.ServeHTTP(rec, req)

		var res tuition.GenerateResult
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if res.Created != 0 || res.Skipped != 2 {
			t.Errorf("created/skipped = %d/%d; want 0/2", res.Created, res.Skipped)
		}
	})

	t.Run("entries are listed with the month filter", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/mensualidades?mes=9&annoEscolarID="+p.ID, getToken(t, clerk))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var entries []tuition.LedgerEntry
		if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("len = %d; want 2", len(entries))
		}
		for _, e := range entries {
			if e.Status != tuition.EntryPending {
				t.Errorf("status = %s; want %s", e.Status, tuition.EntryPending)
			}
			if e.AmountVES.String() != "2000" {
				t.Errorf("montoVES = %s; want 2000", e.AmountVES)
			}
		}
	})

	t.Run("unknown period is a 404", func(t *testing.T) {
		b := marchallObj(t, map[string]interface{}{"annoEscolarID": "4c3a1f10-0000-0000-0000-000000000000", "mes": 9})
		req, rec := newAuthRequest(http.MethodPost, "/v1/mensualidades/generar", getToken(t, finance), b)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusNotFound, rec.Body.String())
		}
	})
}

func Test_tuitionApi_paymentLifecycle(t *testing.T) {
	db.Reset()

	finance := testutil.CreateUser(t, usrRepo, "Caja", "cajera1", "caja@plantel.test", "LePass123!word", user.FinanceRoles, true)
	clerk := testutil.CreateUser(t, usrRepo, "Clerk", "clerk1", "clerk@plantel.test", "LePass123!word", user.SecretaryRoles, true)
	p := testutil.CreatePeriod(t, periodRepo, "2024-2025", true)
	testutil.SetPaymentConfig(t, configRepo, "50", "40", "0.10", 5)
	stud := testutil.CreateStudent(t, studentRepo, "Ana", "Sra. Pérez", "perez@plantel.test", true)

	genBody := marchallObj(t, map[string]interface{}{"annoEscolarID": p.ID, "mes": 9})
	req, rec := newAuthRequest(http.MethodPost, "/v1/mensualidades/generar", getToken(t, finance), genBody)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("generating entries: code = %v; body %s", rec.Code, rec.Body.String())
	}

	req, rec = newAuthRequest(http.MethodGet, "/v1/mensualidades?estudianteID="+stud.ID, getToken(t, clerk))
	app.ServeHTTP(rec, req)
	var entries []tuition.LedgerEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshalling entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d; want 1", len(entries))
	}
	entry := entries[0]

	var pay tuition.Payment

	t.Run("secretary registers a pending payment", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"estudianteID":  stud.ID,
			"monto":         "50",
			"montoMora":     "5",
			"descuento":     "2.5",
			"mensualidadID": entry.ID,
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/pagos", getToken(t, clerk), body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &pay); err != nil {
			t.Fatalf("unmarshalling payment: %v", err)
		}
		if pay.Status != tuition.PaymentPending {
			t.Errorf("status = %s; want %s", pay.Status, tuition.PaymentPending)
		}
	})

	t.Run("registering against the settled entry fails", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"estudianteID":  stud.ID,
			"monto":         "50",
			"mensualidadID": entry.ID,
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/pagos", getToken(t, clerk), body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("secretary cannot approve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/pagos/"+pay.ID+"/aprobar", getToken(t, clerk))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("finance approves and the entry settles", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/pagos/"+pay.ID+"/aprobar", getToken(t, finance))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var approved tuition.Payment
		if err := json.Unmarshal(rec.Body.Bytes(), &approved); err != nil {
			t.Fatalf("unmarshalling payment: %v", err)
		}
		if approved.Status != tuition.PaymentApproved {
			t.Errorf("status = %s; want %s", approved.Status, tuition.PaymentApproved)
		}
		if !approved.PaidAt.Valid {
			t.Error("expected fechaPago to be set")
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/mensualidades?estudianteID="+stud.ID, getToken(t, clerk))
		app.ServeHTTP(rec, req)
		var entries []tuition.LedgerEntry
		if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
			t.Fatalf("unmarshalling entries: %v", err)
		}
		if entries[0].Status != tuition.EntryPaid {
			t.Errorf("entry status = %s; want %s", entries[0].Status, tuition.EntryPaid)
		}
	})

	t.Run("double approval fails", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/pagos/"+pay.ID+"/aprobar", getToken(t, finance))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("voiding reverts the entry", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/pagos/"+pay.ID+"/anular", getToken(t, finance))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/mensualidades?estudianteID="+stud.ID, getToken(t, clerk))
		app.ServeHTTP(rec, req)
		var entries []tuition.LedgerEntry
		if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
			t.Fatalf("unmarshalling entries: %v", err)
		}
		if entries[0].Status != tuition.EntryPending {
			t.Errorf("entry status = %s; want %s", entries[0].Status, tuition.EntryPending)
		}
	})

	t.Run("unknown payment is a 404", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/pagos/4c3a1f10-0000-0000-0000-000000000000/aprobar", getToken(t, finance))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusNotFound, rec.Body.String())
		}
	})
}

func Test_tuitionApi_receiptEmail(t *testing.T) {
	db.Reset()

	finance := testutil.CreateUser(t, usrRepo, "Caja", "cajera1", "caja@plantel.test", "LePass123!word", user.FinanceRoles, true)
	p := testutil.CreatePeriod(t, periodRepo, "2024-2025", true)
	testutil.SetPaymentConfig(t, configRepo, "50", "40", "0.10", 5)
	stud := testutil.CreateStudent(t, studentRepo, "Ana", "Sra. Pérez", "perez@plantel.test", true)

	genBody := marchallObj(t, map[string]interface{}{"annoEscolarID": p.ID, "mes": 9})
	req, rec := newAuthRequest(http.MethodPost, "/v1/mensualidades/generar", getToken(t, finance), genBody)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("generating entries: code = %v; body %s", rec.Code, rec.Body.String())
	}

	req, rec = newAuthRequest(http.MethodGet, "/v1/mensualidades?estudianteID="+stud.ID, getToken(t, finance))
	app.ServeHTTP(rec, req)
	var entries []tuition.LedgerEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshalling entries: %v", err)
	}

	registerAndApproveBody := func(t *testing.T, body []byte) {
		t.Helper()
		req, rec := newAuthRequest(http.MethodPost, "/v1/pagos", getToken(t, finance), body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("registering payment: code = %v; body %s", rec.Code, rec.Body.String())
		}
		var pay tuition.Payment
		if err := json.Unmarshal(rec.Body.Bytes(), &pay); err != nil {
			t.Fatalf("unmarshalling payment: %v", err)
		}
		req, rec = newAuthRequest(http.MethodPost, "/v1/pagos/"+pay.ID+"/aprobar", getToken(t, finance))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("approving payment: code = %v; body %s", rec.Code, rec.Body.String())
		}
	}

	lastMessage := func(t *testing.T) core.EmailMessage {
		t.Helper()
		msgs := mailSvc.SentMessages()
		if len(msgs) == 0 {
			t.Fatal("no receipt email was sent")
		}
		return msgs[len(msgs)-1]
	}

	t.Run("linked payment names the month", func(t *testing.T) {
		registerAndApproveBody(t, marchallObj(t, map[string]interface{}{
			"estudianteID":  stud.ID,
			"monto":         "50",
			"mensualidadID": entries[0].ID,
		}))

		msg := lastMessage(t)
		if !strings.Contains(msg.TextContent, "Mes: 9") {
			t.Errorf("receipt missing month line:\n%s", msg.TextContent)
		}
		if !strings.Contains(msg.TextContent, "Total pagado: 50 USD") {
			t.Errorf("receipt missing total line:\n%s", msg.TextContent)
		}
	})

	t.Run("unlinked payment omits the month line", func(t *testing.T) {
		registerAndApproveBody(t, marchallObj(t, map[string]interface{}{
			"estudianteID": stud.ID,
			"monto":        "30",
			"mesPago":      "octubre",
		}))

		msg := lastMessage(t)
		if strings.Contains(msg.TextContent, "Mes:") {
			t.Errorf("receipt should not carry a month line:\n%s", msg.TextContent)
		}
		if !strings.Contains(msg.TextContent, "Total pagado: 30 USD") {
			t.Errorf("receipt missing total line:\n%s", msg.TextContent)
		}
	})
}

func Test_tuitionApi_config(t *testing.T) {
	db.Reset()

	finance := testutil.CreateUser(t, usrRepo, "Caja", "cajera1", "caja@plantel.test", "LePass123!word", user.FinanceRoles, true)
	clerk := testutil.CreateUser(t, usrRepo, "Clerk", "clerk1", "clerk@plantel.test", "LePass123!word", user.SecretaryRoles, true)
	testutil.SetPaymentConfig(t, configRepo, "50", "40", "0.10", 5)

	t.Run("secretary cannot read the config", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/configuracion-pagos", getToken(t, clerk))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("partial update keeps the other fields", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"tasaCambio": "45.5"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/configuracion-pagos", getToken(t, finance), body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var cfg tuition.PaymentConfig
		if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
			t.Fatalf("unmarshalling config: %v", err)
		}
		if cfg.ExchangeRate.String() != "45.5" {
			t.Errorf("tasaCambio = %s; want 45.5", cfg.ExchangeRate)
		}
		if cfg.BaseAmountUSD.String() != "50" {
			t.Errorf("montoMensualidadUSD = %s; want 50", cfg.BaseAmountUSD)
		}
	})

	t.Run("out-of-range cutoff day is rejected", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"diaCorte": 31})
		req, rec := newAuthRequest(http.MethodPut, "/v1/configuracion-pagos", getToken(t, finance), body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})
}
