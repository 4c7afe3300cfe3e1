package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
	"github.com/ManuelReschke/CourseFox/internal/pkg/utils"
)

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=200"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type profileRequest struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
	Bio  string `json:"bio" validate:"max=500"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

// HandleRegister creates a student or instructor account and returns a token.
func HandleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := bindJSON(c, &req, true); err != nil {
		return respondError(c, err)
	}

	role := models.RoleStudent
	if req.Role != "" {
		parsed, ok := models.ParseRole(req.Role)
		if !ok {
			return respondError(c, apperror.BadRequest("Invalid role"))
		}
		role = parsed
	}

	repo := deps.Repos.GetUserRepository()
	if _, err := repo.GetByEmail(req.Email); err == nil {
		return respondError(c, apperror.Conflict("User already exists with this email"))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return respondError(c, apperror.Internal("Failed to check email", err))
	}

	user, err := models.CreateUser(req.Name, req.Email, req.Password, role)
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return respondError(c, apperror.Validation(err))
		}
		return respondError(c, apperror.Internal("Failed to create user", err))
	}
	user.ProfilePicture = utils.GetGravatarURL(user.Email, utils.DefaultAvatarSize)
	if err := repo.Create(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return respondError(c, apperror.Conflict("User already exists with this email"))
		}
		return respondError(c, apperror.Internal("Failed to create user", err))
	}

	token, err := deps.Tokens.IssueToken(user.ID, user.Role)
	if err != nil {
		return respondError(c, apperror.Internal("Failed to issue token", err))
	}
	log.Infof("[Auth] Registered user %d as %s", user.ID, user.Role)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"token": token, "user": user})
}

// HandleLogin exchanges email and password for a token.
func HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := bindJSON(c, &req, true); err != nil {
		return respondError(c, err)
	}

	repo := deps.Repos.GetUserRepository()
	user, err := repo.GetByEmail(req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, apperror.Unauthorized("Invalid credentials"))
		}
		return respondError(c, apperror.Internal("Failed to load user", err))
	}
	if !models.CheckPasswordHash(req.Password, user.Password) {
		return respondError(c, apperror.Unauthorized("Invalid credentials"))
	}
	if !user.IsActive {
		return respondError(c, apperror.Unauthorized("Account is deactivated"))
	}

	token, err := deps.Tokens.IssueToken(user.ID, user.Role)
	if err != nil {
		return respondError(c, apperror.Internal("Failed to issue token", err))
	}
	if err := repo.TouchLastLogin(user.ID); err != nil {
		log.Warnf("[Auth] Failed to record login for user %d: %v", user.ID, err)
	}
	return c.JSON(fiber.Map{"token": token, "user": user})
}

// HandleGetMe returns the authenticated user with enrollment and teaching counts.
func HandleGetMe(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	repo := deps.Repos.GetUserRepository()
	user, err := repo.GetByID(userID)
	if err != nil {
		return respondError(c, apperror.FromStore(err, "User not found"))
	}
	stats, err := repo.GetStatsByUserID(userID)
	if err != nil {
		return respondError(c, apperror.Internal("Failed to load statistics", err))
	}
	return c.JSON(fiber.Map{"user": user, "stats": stats})
}

// HandleUpdateMe changes name and bio. Email and role are not editable here.
func HandleUpdateMe(c *fiber.Ctx) error {
	var req profileRequest
	if err := bindJSON(c, &req, true); err != nil {
		return respondError(c, err)
	}
	userID := usercontext.GetUserID(c)
	repo := deps.Repos.GetUserRepository()
	if err := repo.UpdateProfile(userID, req.Name, req.Bio); err != nil {
		return respondError(c, apperror.FromStore(err, "User not found"))
	}
	user, err := repo.GetByID(userID)
	if err != nil {
		return respondError(c, apperror.FromStore(err, "User not found"))
	}
	return c.JSON(fiber.Map{"user": user})
}

func HandleChangePassword(c *fiber.Ctx) error {
	var req passwordRequest
	if err := bindJSON(c, &req, true); err != nil {
		return respondError(c, err)
	}
	userID := usercontext.GetUserID(c)
	repo := deps.Repos.GetUserRepository()
	user, err := repo.GetByID(userID)
	if err != nil {
		return respondError(c, apperror.FromStore(err, "User not found"))
	}
	if !models.CheckPasswordHash(req.CurrentPassword, user.Password) {
		return respondError(c, apperror.BadRequest("Current password is incorrect"))
	}
	hash, err := models.HashPassword(req.NewPassword)
	if err != nil {
		return respondError(c, apperror.Internal("Failed to hash password", err))
	}
	if err := repo.UpdatePassword(userID, hash); err != nil {
		return respondError(c, apperror.Internal("Failed to update password", err))
	}
	return c.JSON(fiber.Map{"message": "Password updated"})
}
