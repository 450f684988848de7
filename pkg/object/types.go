package object

// Hash is a 64-character hex-encoded SHA-256 digest.
type Hash string

// ZeroHash is the all-zero hash used on the wire to mean "no object",
// e.g. ref creation and deletion commands in a push.
const ZeroHash = Hash("0000000000000000000000000000000000000000000000000000000000000000")

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
	TreeModeSymlink    = "120000"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object. Hash points at a blob for file
// and symlink modes, and at a subtree for directory mode.
type TreeEntry struct {
	Name string
	Mode string
	Hash Hash
}

// IsDir reports whether the entry refers to a subtree.
func (e TreeEntry) IsDir() bool {
	return e.Mode == TreeModeDir
}

// TreeObj holds a list of tree entries, sorted by Name when serialized.
type TreeObj struct {
	Entries []TreeEntry
}

// CommitObj represents a commit pointing to a tree with metadata.
// Parents holds zero to two hashes; the first parent is the mainline.
type CommitObj struct {
	TreeHash  Hash
	Parents   []Hash
	Author    string
	Committer string
	Timestamp int64
	Message   string
}

// TagObj is an annotated tag pointing at another object, normally a commit.
type TagObj struct {
	TargetHash Hash
	Name       string
	Message    string
}
