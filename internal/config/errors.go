package config

import "github.com/chidi150c/sentinel/internal/model"

var errInvalid = model.ErrInvalidConfig
