package controllers

import (
	"net/http"

	"github.com/shashiranjanraj/kashvi-shop/app/resources"
	"github.com/shashiranjanraj/kashvi-shop/app/services"
	"github.com/shashiranjanraj/kashvi-shop/pkg/resource"
	"github.com/shashiranjanraj/kashvi-shop/pkg/response"
)

type AuthController struct {
	service *services.AuthService
}

func NewAuthController(service *services.AuthService) *AuthController {
	return &AuthController{service: service}
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Name     string `json:"name"     validate:"required,max=255"`
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,between=8,72"`
}

func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decode(w, r, &body) {
		return
	}

	session, err := c.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.Success(w, sessionBody(session))
}

func (c *AuthController) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decode(w, r, &body) {
		return
	}

	session, err := c.service.Register(r.Context(), body.Name, body.Email, body.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.Created(w, sessionBody(session))
}

func (c *AuthController) Me(w http.ResponseWriter, r *http.Request) {
	user, err := c.service.Me(r.Context(), requester(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	resource.New(resources.User{}, user).Respond(w)
}

func sessionBody(s *services.Session) resource.Map {
	return resource.Map{
		"token":      s.Token,
		"expires_at": s.ExpiresAt,
		"user":       resource.New(resources.User{}, s.User),
	}
}
