package api

import (
	_ "embed"
	"html/template"
	"net/http"

	"github.com/Ogstra/ifstat/core"
)

//go:embed dashboard.html
var dashboardHTML string

var dashboardTmpl = template.Must(template.New("dashboard").Parse(dashboardHTML))

type pageData struct {
	MAC       string
	Endpoint  string
	LoginForm bool
}

// handleIndex serves the dashboard shell. Data is loaded by the page from
// the API so the shell itself carries nothing sensitive.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := pageData{
		MAC:       core.NormalizeMAC(s.config.TargetMAC),
		Endpoint:  s.config.EndpointURL,
		LoginForm: s.config.JWTSecret != "" && s.config.AdminPasswordHash != "",
	}
	if err := dashboardTmpl.Execute(w, data); err != nil {
		s.log.Error("render dashboard", "err", err)
	}
}
