//go:build production

package main

import (
	"errors"

	"github.com/Gopher0727/BirthdayBox/internal/repository"
)

func openMemoryStore() (repository.Store, error) {
	return repository.Store{}, errors.New("memory storage is not available in production builds")
}
