//go:build !production

package main

import (
	"github.com/Gopher0727/BirthdayBox/internal/repository"
	"github.com/Gopher0727/BirthdayBox/internal/repository/memory"
)

func openMemoryStore() (repository.Store, error) {
	return memory.New(), nil
}
