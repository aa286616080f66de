package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"payflow/internal/domain/user/model"
	"payflow/internal/domain/user/repository"
	"payflow/internal/pkg/apperr"
	"payflow/pkg/database"
	"payflow/pkg/utils"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("user not found")

const (
	msgUserExists  = "User already exists"
	msgInvalidAuth = "Invalid email or password"
)

// RegisterInput 注册参数
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Phone     string
	Address   string
}

// LoginResult 登录结果
type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

// UserService 用户服务接口
type UserService interface {
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	// FindByEmail 不存在时返回 ErrUserNotFound
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// userService 实现
type userService struct {
	repo       repository.UserRepository
	exec       *database.Executor
	secret     string
	sessionTTL time.Duration
	bcryptCost int
}

// NewUserService 创建用户服务
func NewUserService(repo repository.UserRepository, exec *database.Executor, secret string, sessionTTL time.Duration) UserService {
	return &userService{
		repo:       repo,
		exec:       exec,
		secret:     secret,
		sessionTTL: sessionTTL,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// Register 注册
func (s *userService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	// 1. 密码加密
	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		Address:   in.Address,
		Password:  string(hashed),
	}

	// 2. 写入数据库，唯一索引冲突不重试
	_, err = database.Execute(ctx, s.exec, func(ctx context.Context) (struct{}, error) {
		err := s.repo.Create(ctx, user)
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return struct{}{}, database.Permanent(apperr.Conflict(msgUserExists))
		}
		return struct{}{}, err
	}, database.WithTag("user.create"))
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Login 登录并签发会话 Token
func (s *userService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	// 1. 查询用户
	user, err := s.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperr.Unauthorized(msgInvalidAuth, err)
		}
		return nil, err
	}

	// 2. 校验密码
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, apperr.Unauthorized(msgInvalidAuth, err)
	}

	// 3. 生成 Token
	token, expireAt, err := utils.GenerateToken(s.secret, user.ID, user.Email, s.sessionTTL)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Token: token, ExpiresAt: *expireAt, User: user}, nil
}

// FindByEmail 按邮箱查询用户
func (s *userService) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return database.Execute(ctx, s.exec, func(ctx context.Context) (*model.User, error) {
		user, err := s.repo.GetByEmail(ctx, email)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, database.Permanent(ErrUserNotFound)
		}
		return user, err
	}, database.WithTag("user.find"))
}
