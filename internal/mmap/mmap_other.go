//go:build !unix

package mmap

func osReserve(int) ([]byte, error) { return nil, ErrUnsupported }

func osCommit([]byte) error { return ErrUnsupported }

func osDecommit([]byte) error { return ErrUnsupported }

func osRelease([]byte) error { return nil }
