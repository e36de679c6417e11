//go:build unix

package disk_test

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Kyllano/TacOS/disk"
	"github.com/Kyllano/TacOS/interrupt"
)

var _ = Describe("image locking", func() {
	It("should not let two disks share an image", func() {
		intr := interrupt.New(interrupt.WithLogger(quietLogger()))
		path := filepath.Join(GinkgoT().TempDir(), "DISK")

		first, err := disk.Open(path, intr, nil, disk.WithLogger(quietLogger()))
		Expect(err).NotTo(HaveOccurred())

		_, err = disk.Open(path, intr, nil, disk.WithLogger(quietLogger()))
		Expect(err).To(HaveOccurred())

		Expect(first.Close()).To(Succeed())

		again, err := disk.Open(path, intr, nil, disk.WithLogger(quietLogger()))
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Close()).To(Succeed())
	})
})
