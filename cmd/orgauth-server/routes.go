package main

import (
	"context"
	"net/http"

	"github.com/MrEthical07/orgauth"
	"github.com/MrEthical07/orgauth/middleware"
	"github.com/MrEthical07/orgauth/permission"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// policies is the authorization table for resource routes. Templates must match
// the mux registrations below.
func policies() *permission.Table {
	t := permission.NewTable()
	t.MustRegister(http.MethodGet, "/branches/{branchId}", permission.Policy{
		Roles: []permission.Role{permission.RoleOwner, permission.RoleLeader, permission.RoleManager},
		Scope: &permission.Requirement{Kind: permission.ScopeBranch, Param: "branchId"},
	})
	t.MustRegister(http.MethodGet, "/departments/{departmentId}", permission.Policy{
		Roles: []permission.Role{permission.RoleOwner, permission.RoleLeader, permission.RoleManager},
		Scope: &permission.Requirement{Kind: permission.ScopeDepartment, Param: "departmentId"},
	})
	t.MustRegister(http.MethodGet, "/organization", permission.Policy{
		Roles: []permission.Role{permission.RoleOwner},
	})
	t.Freeze()
	return t
}

func newRouter(engine *orgauth.Engine, gatherer prometheus.Gatherer, health func(context.Context) error, opts middleware.Options) http.Handler {
	h := &handlers{engine: engine, opts: opts}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthHandler(health)).Methods(http.MethodGet)

	public := r.PathPrefix("/auth").Subrouter()
	public.HandleFunc("/register", h.register).Methods(http.MethodPost)
	public.HandleFunc("/login", h.login).Methods(http.MethodPost)
	public.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
	public.HandleFunc("/password/forgot", h.forgotPassword).Methods(http.MethodPost)
	public.HandleFunc("/password/reset", h.resetPassword).Methods(http.MethodPost)

	authenticated := r.NewRoute().Subrouter()
	authenticated.Use(
		middleware.Authenticate(engine, opts),
		middleware.Authorize(engine, policies(), opts),
	)
	authenticated.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)
	authenticated.HandleFunc("/auth/logout-all", h.logoutAll).Methods(http.MethodPost)
	authenticated.HandleFunc("/auth/password/change", h.changePassword).Methods(http.MethodPost)
	authenticated.HandleFunc("/auth/sessions", h.listSessions).Methods(http.MethodGet)
	authenticated.HandleFunc("/auth/sessions/{sessionId}", h.revokeSession).Methods(http.MethodDelete)
	authenticated.HandleFunc("/me", h.me).Methods(http.MethodGet)
	authenticated.HandleFunc("/organization", h.scopedResource).Methods(http.MethodGet)
	authenticated.HandleFunc("/branches/{branchId}", h.scopedResource).Methods(http.MethodGet)
	authenticated.HandleFunc("/departments/{departmentId}", h.scopedResource).Methods(http.MethodGet)

	return r
}

func healthHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				middleware.WriteError(w, http.StatusServiceUnavailable, "unavailable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
