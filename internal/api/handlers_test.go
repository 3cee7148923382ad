package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/snarg/mtcagent/internal/schema"
	"github.com/snarg/mtcagent/internal/store"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry(zerolog.Nop())
	reg.InsertSchema(schema.Device{
		UUID: "000",
		Name: "VMC-3Axis",
		DataItems: []schema.DataItem{
			{ID: "dtop_2", Name: "avail", Type: "AVAILABILITY", Category: schema.CategoryEvent},
		},
		Components: []schema.Component{
			{
				ID: "elec_1", Type: "Electric",
				DataItems: []schema.DataItem{
					{ID: "htemp_1", Name: "htemp", Type: "TEMPERATURE", Category: schema.CategoryCondition},
				},
			},
			{
				ID: "x_1", Type: "Linear", Name: "X",
				DataItems: []schema.DataItem{
					{ID: "xpos_1", Name: "Xpos", Type: "POSITION", SubType: "ACTUAL", Category: schema.CategorySample},
				},
			},
		},
	})
	return reg
}

func eventObs(id, name, typ, value string) store.Observation {
	return store.Observation{
		Time: "2026-08-26T10:00:00Z", DataItemID: id, Name: name,
		Type: typ, Category: schema.CategoryEvent, Value: store.Scalar(value),
	}
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st := store.New(store.Options{BufferSize: 100})
	srv := NewServer(ServerOptions{
		Addr:       ":0",
		Registry:   testRegistry(t),
		Store:      st,
		Version:    "test",
		InstanceID: 42,
		Log:        zerolog.Nop(),
	})
	return srv, st
}

func get(t *testing.T, srv *Server, url string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", url, nil)
	srv.http.Handler.ServeHTTP(rec, req)
	return rec.Code, rec.Body.String()
}

func TestProbe(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("all_devices", func(t *testing.T) {
		code, body := get(t, srv, "/probe")
		if code != http.StatusOK {
			t.Fatalf("status = %d, want 200", code)
		}
		for _, want := range []string{
			`<MTConnectDevices`,
			`instanceId="42"`,
			`<Device id="000" name="VMC-3Axis" uuid="000">`,
			`<DataItem category="SAMPLE" id="xpos_1" type="POSITION" name="Xpos" subType="ACTUAL"/>`,
		} {
			if !strings.Contains(body, want) {
				t.Errorf("probe missing %q\n%s", want, body)
			}
		}
	})

	t.Run("by_device_name", func(t *testing.T) {
		code, body := get(t, srv, "/probe/VMC-3Axis")
		if code != http.StatusOK || !strings.Contains(body, `uuid="000"`) {
			t.Errorf("status = %d body = %s", code, body)
		}
	})

	t.Run("unknown_device", func(t *testing.T) {
		code, body := get(t, srv, "/probe/nope")
		if code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", code)
		}
		if !strings.Contains(body, `errorCode="NO_DEVICE"`) {
			t.Errorf("body = %s", body)
		}
	})
}

func TestCurrent(t *testing.T) {
	srv, st := newTestServer(t)

	t.Run("defaults_unavailable", func(t *testing.T) {
		code, body := get(t, srv, "/current")
		if code != http.StatusOK {
			t.Fatalf("status = %d, want 200", code)
		}
		if !strings.Contains(body, `>UNAVAILABLE</Availability>`) {
			t.Errorf("current missing unavailable default\n%s", body)
		}
	})

	st.Update(eventObs("dtop_2", "avail", "AVAILABILITY", "AVAILABLE"))

	t.Run("observed_value", func(t *testing.T) {
		_, body := get(t, srv, "/current")
		if !strings.Contains(body, `sequence="1">AVAILABLE</Availability>`) {
			t.Errorf("current missing observed value\n%s", body)
		}
	})

	t.Run("path_filter", func(t *testing.T) {
		_, body := get(t, srv, `/current?path=//Linear[@name="X"]`)
		if !strings.Contains(body, "Position") {
			t.Errorf("filtered current missing Position\n%s", body)
		}
		if strings.Contains(body, "Availability") {
			t.Errorf("filtered current should exclude Availability\n%s", body)
		}
	})

	t.Run("invalid_path", func(t *testing.T) {
		code, body := get(t, srv, "/current?path=Linear[")
		if code != http.StatusBadRequest || !strings.Contains(body, `errorCode="INVALID_XPATH"`) {
			t.Errorf("status = %d body = %s", code, body)
		}
	})

	t.Run("at_historical", func(t *testing.T) {
		st.Update(eventObs("dtop_2", "avail", "AVAILABILITY", "UNAVAILABLE")) // seq 2
		_, body := get(t, srv, "/current?at=1")
		if !strings.Contains(body, `sequence="1">AVAILABLE</Availability>`) {
			t.Errorf("at=1 should see the first value\n%s", body)
		}
	})

	t.Run("at_out_of_range", func(t *testing.T) {
		code, body := get(t, srv, "/current?at=999")
		if code != http.StatusBadRequest || !strings.Contains(body, `errorCode="OUT_OF_RANGE"`) {
			t.Errorf("status = %d body = %s", code, body)
		}
	})
}

func TestCurrentConditionSet(t *testing.T) {
	srv, st := newTestServer(t)
	condObs := func(level, code, msg string) store.Observation {
		return store.Observation{
			Time: "t", DataItemID: "htemp_1", Name: "htemp", Type: "TEMPERATURE",
			Category: schema.CategoryCondition,
			Value:    store.Condition{Level: level, NativeCode: code, Message: msg},
		}
	}
	st.Update(condObs("WARNING", "HTEMP", "warm"))
	st.Update(condObs("FAULT", "OVERTEMP", "hot"))

	_, body := get(t, srv, "/current")
	if !strings.Contains(body, `<Warning type="TEMPERATURE" nativeCode="HTEMP"`) ||
		!strings.Contains(body, `<Fault type="TEMPERATURE" nativeCode="OVERTEMP"`) {
		t.Errorf("current should list both active conditions\n%s", body)
	}
}

func TestSample(t *testing.T) {
	srv, st := newTestServer(t)
	st.Update(eventObs("dtop_2", "avail", "AVAILABILITY", "AVAILABLE"))
	st.Update(eventObs("dtop_2", "avail", "AVAILABILITY", "UNAVAILABLE"))

	t.Run("window", func(t *testing.T) {
		code, body := get(t, srv, "/sample?from=2&count=10")
		if code != http.StatusOK {
			t.Fatalf("status = %d, want 200", code)
		}
		if strings.Contains(body, `sequence="1"`) || !strings.Contains(body, `sequence="2"`) {
			t.Errorf("window should start at 2\n%s", body)
		}
	})

	t.Run("out_of_range", func(t *testing.T) {
		code, body := get(t, srv, "/sample?from=99")
		if code != http.StatusBadRequest || !strings.Contains(body, `errorCode="OUT_OF_RANGE"`) {
			t.Errorf("status = %d body = %s", code, body)
		}
	})

	t.Run("bad_count", func(t *testing.T) {
		code, _ := get(t, srv, "/sample?count=zero")
		if code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", code)
		}
	})

	t.Run("interval_unsupported", func(t *testing.T) {
		code, body := get(t, srv, "/sample?interval=500")
		if code != http.StatusBadRequest || !strings.Contains(body, `errorCode="UNSUPPORTED"`) {
			t.Errorf("status = %d body = %s", code, body)
		}
	})
}

func TestAssets(t *testing.T) {
	srv, st := newTestServer(t)
	st.AddAsset("TOOL.1", "CuttingTool", "t1", `<CuttingTool><ToolLife>100</ToolLife></CuttingTool>`)
	st.AddAsset("FX.1", "Fixture", "t2", `<Fixture/>`)

	t.Run("list_all", func(t *testing.T) {
		code, body := get(t, srv, "/assets")
		if code != http.StatusOK {
			t.Fatalf("status = %d, want 200", code)
		}
		for _, want := range []string{`assetCount="2"`, `assetId="TOOL.1"`, `assetId="FX.1"`} {
			if !strings.Contains(body, want) {
				t.Errorf("assets missing %q\n%s", want, body)
			}
		}
	})

	t.Run("type_filter", func(t *testing.T) {
		_, body := get(t, srv, "/assets?type=Fixture")
		if strings.Contains(body, "TOOL.1") || !strings.Contains(body, "FX.1") {
			t.Errorf("type filter wrong\n%s", body)
		}
	})

	t.Run("by_id", func(t *testing.T) {
		code, body := get(t, srv, "/assets/TOOL.1")
		if code != http.StatusOK || !strings.Contains(body, "<ToolLife>100</ToolLife>") {
			t.Errorf("status = %d body = %s", code, body)
		}
	})

	t.Run("removed_tombstone_visible_by_id", func(t *testing.T) {
		st.RemoveAsset("FX.1", "t3")
		code, body := get(t, srv, "/assets/FX.1")
		if code != http.StatusOK || !strings.Contains(body, `removed="true"`) {
			t.Errorf("status = %d body = %s", code, body)
		}
		_, list := get(t, srv, "/assets")
		if strings.Contains(list, "FX.1") {
			t.Errorf("removed asset should be excluded from the list\n%s", list)
		}
	})

	t.Run("unknown_id", func(t *testing.T) {
		code, body := get(t, srv, "/assets/nope")
		if code != http.StatusNotFound || !strings.Contains(body, `errorCode="ASSET_NOT_FOUND"`) {
			t.Errorf("status = %d body = %s", code, body)
		}
	})
}

func TestHealthz(t *testing.T) {
	srv, st := newTestServer(t)
	st.Update(eventObs("dtop_2", "avail", "AVAILABILITY", "AVAILABLE"))

	code, body := get(t, srv, "/healthz")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	var resp HealthResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if resp.Status != "ok" || resp.LastSequence != 1 {
		t.Errorf("health = %+v", resp)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/current", strings.NewReader(""))
	srv.http.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `errorCode="UNSUPPORTED"`) {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}
