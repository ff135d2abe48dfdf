package smalloc_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestSmalloc(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "smalloc Suite")
}
