package device_test

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/kairos-io/qcowmount/device"
	"github.com/kairos-io/qcowmount/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/twpayne/go-vfs/v4/vfst"
	"golang.org/x/sys/unix"
)

var _ = Describe("SysfsQuery", Label("query"), func() {
	var buf bytes.Buffer
	var cleanup func()
	var query *device.SysfsQuery

	BeforeEach(func() {
		buf = bytes.Buffer{}
		fs, c, err := vfst.NewTestFS(map[string]interface{}{
			"/sys/block/nbd0/size": "0\n",
			"/sys/block/nbd1/size": "2097152\n",
			"/sys/block/nbd2/size": "garbage",
		})
		Expect(err).ToNot(HaveOccurred())
		cleanup = c
		query = device.NewSysfsQuery(fs, device.NewPaths(""), types.NewBufferLogger(&buf))
	})
	AfterEach(func() {
		cleanup()
	})

	It("reports an unbound device as zero bytes", func() {
		size, exists, err := query.Size(types.NewDeviceSlot("/dev/nbd", 0))
		Expect(err).ToNot(HaveOccurred())
		Expect(exists).To(BeTrue())
		Expect(size).To(BeZero())
	})
	It("converts sectors to bytes", func() {
		size, exists, err := query.Size(types.NewDeviceSlot("/dev/nbd", 1))
		Expect(err).ToNot(HaveOccurred())
		Expect(exists).To(BeTrue())
		Expect(size).To(Equal(uint64(2097152 * 512)))
	})
	It("reports a missing device as not existing", func() {
		_, exists, err := query.Size(types.NewDeviceSlot("/dev/nbd", 7))
		Expect(err).ToNot(HaveOccurred())
		Expect(exists).To(BeFalse())
	})
	It("fails on unparsable content", func() {
		_, _, err := query.Size(types.NewDeviceSlot("/dev/nbd", 2))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("IoctlQuery", Label("query"), func() {
	var buf bytes.Buffer
	var dir string
	var query *device.IoctlQuery

	BeforeEach(func() {
		buf = bytes.Buffer{}
		dir = GinkgoT().TempDir()
		query = device.NewIoctlQuery(types.NewBufferLogger(&buf))
	})

	It("reports a missing device as not existing", func() {
		size, exists, err := query.Size(types.NewDeviceSlot(filepath.Join(dir, "nbd"), 0))
		Expect(err).ToNot(HaveOccurred())
		Expect(exists).To(BeFalse())
		Expect(size).To(BeZero())
	})
	It("fails on a path that is not a block device", func() {
		prefix := filepath.Join(dir, "nbd")
		Expect(os.WriteFile(prefix+"3", []byte("not a device"), 0o644)).To(Succeed())
		_, exists, err := query.Size(types.NewDeviceSlot(prefix, 3))
		Expect(exists).To(BeTrue())
		Expect(err).To(MatchError(unix.ENOTTY))
		Expect(err.Error()).To(ContainSubstring("BLKGETSIZE64 on " + prefix + "3"))
	})
})

var _ = Describe("Paths", Label("query"), func() {
	AfterEach(func() {
		Expect(os.Unsetenv("QCOWMOUNT_CHROOT")).To(Succeed())
	})
	It("defaults to /sys/block", func() {
		Expect(device.NewPaths("").SysBlock).To(Equal("/sys/block/"))
	})
	It("accepts a prefix", func() {
		Expect(device.NewPaths("/host/").SysBlock).To(Equal("/host/sys/block/"))
	})
	It("prefers the env override", func() {
		Expect(os.Setenv("QCOWMOUNT_CHROOT", "/chroot")).To(Succeed())
		Expect(device.NewPaths("/host").SysBlock).To(Equal("/chroot/sys/block/"))
	})
})
