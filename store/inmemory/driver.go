// Package inmemory provides a store.Store that keeps content and the mutable
// namespace in process memory. Content is chunked and linked with the same
// unixfs layout a Kubo node uses, so the identifiers it returns match the
// ones a real node would produce for the same bytes.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/distribution/archiver/store"
	"github.com/distribution/archiver/store/base"
	"github.com/distribution/archiver/store/factory"
	"github.com/ipfs/go-blockservice"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-cidutil"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	bstore "github.com/ipfs/go-ipfs-blockstore"
	chunker "github.com/ipfs/go-ipfs-chunker"
	ipld "github.com/ipfs/go-ipld-format"
	"github.com/ipfs/go-merkledag"
	"github.com/ipfs/go-unixfs"
	importer "github.com/ipfs/go-unixfs/importer"
	"github.com/ipfs/go-unixfs/importer/balanced"
	helper "github.com/ipfs/go-unixfs/importer/helpers"
	"github.com/mitchellh/mapstructure"
	mh "github.com/multiformats/go-multihash"
)

const (
	driverName = "inmemory"

	// chunkSize is the size used for CIDv1 content, matching the 1MiB
	// chunker commonly used for raw-leaf imports.
	chunkSize = 1024 * 1024
)

func init() {
	factory.Register(driverName, &inMemoryDriverFactory{})
}

// inMemoryDriverFactory implements the factory.StoreFactory interface.
type inMemoryDriverFactory struct{}

func (factory *inMemoryDriverFactory) Create(ctx context.Context, parameters map[string]interface{}) (store.Store, error) {
	return FromParameters(parameters)
}

// DriverParameters represents all configuration options available for the
// inmemory driver
type DriverParameters struct {
	// CIDVersion selects the identifier version of added content and of
	// assembled directories.
	CIDVersion int `mapstructure:"cidversion"`
}

// entry is a node of the mutable namespace. Directories have children;
// files carry the root node of their content.
type entry struct {
	node     ipld.Node
	children map[string]*entry
}

func newDir() *entry {
	return &entry{children: make(map[string]*entry)}
}

func (e *entry) isDir() bool {
	return e.children != nil
}

type driver struct {
	mu         sync.Mutex
	dag        ipld.DAGService
	root       *entry
	cidVersion int
}

// baseEmbed allows us to hide the Base embed.
type baseEmbed struct {
	base.Base
}

// Driver is a store.Store implementation backed by a local in-memory block
// store. Intended solely for example and testing purposes.
type Driver struct {
	baseEmbed // embedded, hidden base driver.
}

var _ store.Store = &Driver{}

// FromParameters constructs a new Driver with a given parameters map
// Optional Parameters:
// - cidversion
func FromParameters(parameters map[string]interface{}) (*Driver, error) {
	var params DriverParameters
	if err := mapstructure.WeakDecode(parameters, &params); err != nil {
		return nil, fmt.Errorf("inmemory parameters: %w", err)
	}
	if params.CIDVersion != 0 && params.CIDVersion != 1 {
		return nil, fmt.Errorf("inmemory parameters: cidversion must be 0 or 1, got %d", params.CIDVersion)
	}
	return New(params), nil
}

// New constructs a new Driver.
func New(params DriverParameters) *Driver {
	blocks := bstore.NewBlockstore(dssync.MutexWrap(ds.NewMapDatastore()))
	bserv := blockservice.New(blocks, nil)

	return &Driver{
		baseEmbed: baseEmbed{
			Base: base.Base{
				Store: &driver{
					dag:        merkledag.NewDAGService(bserv),
					root:       newDir(),
					cidVersion: params.CIDVersion,
				},
			},
		},
	}
}

// Implement the store.Store interface.

func (d *driver) Name() string {
	return driverName
}

// Mkdir creates the directory and its parents.
func (d *driver) Mkdir(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := d.root
	for _, name := range split(path) {
		child, ok := current.children[name]
		if !ok {
			child = newDir()
			current.children[name] = child
		}
		if !child.isDir() {
			return fmt.Errorf("mkdir %s: %s is not a directory", path, name)
		}
		current = child
	}
	return nil
}

// Add imports the content into the block store.
func (d *driver) Add(ctx context.Context, r io.Reader) (cid.Cid, error) {
	var (
		nd  ipld.Node
		err error
	)
	if d.cidVersion == 1 {
		nd, err = d.importV1(r)
	} else {
		nd, err = d.importV0(r)
	}
	if err != nil {
		return cid.Undef, err
	}
	return nd.Cid(), nil
}

func (d *driver) importV0(r io.Reader) (ipld.Node, error) {
	return importer.BuildDagFromReader(d.dag, chunker.DefaultSplitter(r))
}

func (d *driver) importV1(r io.Reader) (ipld.Node, error) {
	prefix, err := merkledag.PrefixForCidVersion(1)
	if err != nil {
		return nil, err
	}
	prefix.MhType = uint64(mh.SHA2_256)

	dbp := helper.DagBuilderParams{
		Maxlinks:  helper.DefaultLinksPerBlock,
		RawLeaves: true,
		CidBuilder: cidutil.InlineBuilder{
			Builder: prefix,
			Limit:   32,
		},
		Dagserv: d.dag,
	}
	db, err := dbp.New(chunker.NewSizeSplitter(r, chunkSize))
	if err != nil {
		return nil, err
	}
	return balanced.Layout(db)
}

// Copy links the stored content src at dest. The parent of dest must exist
// and dest must not.
func (d *driver) Copy(ctx context.Context, src cid.Cid, dest string) error {
	nd, err := d.dag.Get(ctx, src)
	if err != nil {
		if errors.Is(err, ipld.ErrNotFound) {
			return store.PathNotFoundError{Path: "/ipfs/" + src.String(), DriverName: driverName}
		}
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	names := split(dest)
	parent, err := d.lookup(dest, names[:len(names)-1])
	if err != nil {
		return err
	}
	if !parent.isDir() {
		return fmt.Errorf("cp %s: parent is not a directory", dest)
	}

	name := names[len(names)-1]
	if _, exists := parent.children[name]; exists {
		return fmt.Errorf("cp %s: directory already has entry by that name", dest)
	}
	parent.children[name] = &entry{node: nd}
	return nil
}

// Stat resolves the entry at path, building directory nodes bottom-up.
func (d *driver) Stat(ctx context.Context, path string) (store.FileInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, err := d.lookup(path, split(path))
	if err != nil {
		return store.FileInfo{}, err
	}

	nd, err := d.resolve(ctx, e)
	if err != nil {
		return store.FileInfo{}, err
	}

	cumulative, err := nd.Size()
	if err != nil {
		return store.FileInfo{}, err
	}

	fi := store.FileInfo{
		Path:           path,
		Hash:           nd.Cid(),
		CumulativeSize: cumulative,
		Blocks:         len(nd.Links()),
		Type:           "directory",
	}
	if !e.isDir() {
		fi.Type = "file"
		fi.Size, err = fileSize(nd)
		if err != nil {
			return store.FileInfo{}, err
		}
	}
	return fi, nil
}

func (d *driver) lookup(path string, names []string) (*entry, error) {
	current := d.root
	for _, name := range names {
		if !current.isDir() {
			return nil, store.PathNotFoundError{Path: path, DriverName: driverName}
		}
		child, ok := current.children[name]
		if !ok {
			return nil, store.PathNotFoundError{Path: path, DriverName: driverName}
		}
		current = child
	}
	return current, nil
}

// resolve returns the node for e. Directory nodes are rebuilt from their
// children, with links in name order.
func (d *driver) resolve(ctx context.Context, e *entry) (ipld.Node, error) {
	if !e.isDir() {
		return e.node, nil
	}

	dir := unixfs.EmptyDirNode()
	if d.cidVersion == 1 {
		prefix, err := merkledag.PrefixForCidVersion(1)
		if err != nil {
			return nil, err
		}
		prefix.MhType = uint64(mh.SHA2_256)
		dir.SetCidBuilder(prefix)
	}

	names := make([]string, 0, len(e.children))
	for name := range e.children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		child, err := d.resolve(ctx, e.children[name])
		if err != nil {
			return nil, err
		}
		if err := dir.AddNodeLink(name, child); err != nil {
			return nil, err
		}
	}

	if err := d.dag.Add(ctx, dir); err != nil {
		return nil, err
	}
	return dir, nil
}

func fileSize(nd ipld.Node) (uint64, error) {
	switch n := nd.(type) {
	case *merkledag.RawNode:
		return uint64(len(n.RawData())), nil
	case *merkledag.ProtoNode:
		fsn, err := unixfs.FSNodeFromBytes(n.Data())
		if err != nil {
			return 0, err
		}
		return fsn.FileSize(), nil
	default:
		return 0, fmt.Errorf("unexpected node type %T", nd)
	}
}

func split(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
