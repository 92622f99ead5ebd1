package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/amimof/huego"
	"github.com/gorilla/mux"

	"github.com/dokzlo13/irlightd/internal/control"
	"github.com/dokzlo13/irlightd/internal/driver"
)

// Hue bridge error types
const (
	hueErrUnauthorized    = 1
	hueErrInvalidJSON     = 2
	hueErrNotAvailable    = 3
	hueErrInvalidValue    = 7
	hueLightType          = "Color temperature light"
	hueMaxBri             = 254
	hueAddressLightsState = "/lights/%s/state/%s"
)

type hueError struct {
	Type        int    `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

func writeHueError(w http.ResponseWriter, status int, typ int, address, description string) {
	writeJSON(w, status, []map[string]hueError{{
		"error": {Type: typ, Address: address, Description: description},
	}})
}

// hueAuth rejects users other than the configured one. An empty hue_user
// accepts any.
func (s *Server) hueAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.hueUser != "" && mux.Vars(r)["user"] != s.hueUser {
			writeHueError(w, http.StatusForbidden, hueErrUnauthorized, r.URL.Path, "unauthorized user")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// briFromBrightness maps [0,1] onto Hue's 1..254.
func briFromBrightness(b float64) uint8 {
	bri := math.Round(b * hueMaxBri)
	switch {
	case bri < 1:
		return 1
	case bri > hueMaxBri:
		return hueMaxBri
	}
	return uint8(bri)
}

// brightnessFromBri maps Hue's bri onto [0,1].
func brightnessFromBri(bri uint8) float64 {
	if bri > hueMaxBri {
		bri = hueMaxBri
	}
	return float64(bri) / hueMaxBri
}

func hueLight(st control.Status) huego.Light {
	mireds := st.Desired.Mireds
	if mireds == 0 {
		mireds = (st.Traits.MinMireds + st.Traits.MaxMireds) / 2
	}
	return huego.Light{
		Name:     st.Name,
		Type:     hueLightType,
		UniqueID: st.ID,
		State: &huego.State{
			On:        st.Desired.On,
			Bri:       briFromBrightness(st.Desired.Brightness),
			Ct:        uint16(math.Round(mireds)),
			ColorMode: "ct",
			Reachable: true,
		},
	}
}

func (s *Server) hueListLights(w http.ResponseWriter, r *http.Request) {
	list, err := s.ctrl.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make(map[string]huego.Light, len(list))
	for _, st := range list {
		out[st.ID] = hueLight(st)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) hueGetLight(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, err := s.ctrl.Get(r.Context(), id)
	if err != nil {
		s.hueLookupError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, hueLight(st))
}

// huePutState accepts the on/bri/ct subset of a Hue light state and answers
// with the bridge's per-attribute success list. Other attributes are ignored.
func (s *Server) huePutState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeHueError(w, http.StatusBadRequest, hueErrInvalidJSON, r.URL.Path, "failed to read body")
		return
	}

	// raw tells which attributes were sent; huego.State can't tell false from absent
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		writeHueError(w, http.StatusBadRequest, hueErrInvalidJSON, r.URL.Path, "body contains invalid json")
		return
	}

	var hs huego.State
	if err := json.Unmarshal(body, &hs); err != nil {
		writeHueError(w, http.StatusBadRequest, hueErrInvalidValue, r.URL.Path, "invalid value: "+err.Error())
		return
	}

	var change control.Change
	success := []map[string]map[string]interface{}{}
	report := func(attr string, value interface{}) {
		success = append(success, map[string]map[string]interface{}{
			"success": {fmt.Sprintf(hueAddressLightsState, id, attr): value},
		})
	}

	if _, ok := raw["on"]; ok {
		on := hs.On
		change.On = &on
		report("on", hs.On)
	}
	if _, ok := raw["bri"]; ok {
		b := brightnessFromBri(hs.Bri)
		change.Brightness = &b
		report("bri", hs.Bri)
	}
	if _, ok := raw["ct"]; ok {
		m := float64(hs.Ct)
		change.Mireds = &m
		report("ct", hs.Ct)
	}

	if _, err := s.ctrl.Update(r.Context(), id, change); err != nil {
		s.hueLookupError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

func (s *Server) hueLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, driver.ErrUnknownLight) {
		writeHueError(w, http.StatusNotFound, hueErrNotAvailable, "/lights/"+id, "resource, /lights/"+id+", not available")
		return
	}
	writeError(w, err)
}
