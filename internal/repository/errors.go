package repository

import "errors"

var ErrCorruptStore = errors.New("store file is corrupt")
