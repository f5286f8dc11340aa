package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCertificate_Public(t *testing.T) {
	path := "pe-beginner/u/pe-beginner-abc.pdf"
	cert := &Certificate{CertID: "pe-beginner-abc", FullName: "Jane Doe", CourseKey: "pe-beginner", StoragePath: &path}

	pub := cert.Public()
	require.Equal(t, "Jane Doe", pub.FullName)
	require.Equal(t, path, pub.StoragePath)
	require.True(t, cert.HasArtifact())

	cert.StoragePath = nil
	require.Empty(t, cert.Public().StoragePath)
	require.False(t, cert.HasArtifact())
}
