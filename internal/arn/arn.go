// Package arn builds and parses Amazon Resource Names.
package arn

import (
	"fmt"
	"strings"
)

type Format struct {
	Partition string
	Service   string
	Region    string
	Account   string
	Resource  string
}

func New(service, region, account, resource string) string {
	return fmt.Sprintf("arn:aws:%s:%s:%s:%s", service, region, account, resource)
}

func Parse(s string) (*Format, error) {
	parts := strings.SplitN(s, ":", 6)
	if len(parts) != 6 || parts[0] != "arn" {
		return nil, fmt.Errorf("invalid ARN format: expected arn:<partition>:<service>:<region>:<account>:<resource>, got %s", s)
	}

	return &Format{
		Partition: parts[1],
		Service:   parts[2],
		Region:    parts[3],
		Account:   parts[4],
		Resource:  parts[5],
	}, nil
}

// Resource returns the final resource segment of an ARN, tolerating both
// colon and slash separated resource paths.
func Resource(s string) string {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return s
	}
	res := s[idx+1:]
	if slash := strings.LastIndex(res, "/"); slash >= 0 {
		res = res[slash+1:]
	}
	return res
}
