package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"local.dev/socialfeed-client/internal/backend"
	"local.dev/socialfeed-client/internal/config"
	"local.dev/socialfeed-client/internal/feed"
	"local.dev/socialfeed-client/internal/firebase"
	"local.dev/socialfeed-client/internal/memstore"
	"local.dev/socialfeed-client/internal/session"
)

const SocialfeedVersion = "0.1.0"

var Out *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
}

type app struct {
	paths    config.Paths
	sessions *session.Manager
	client   *feed.Client
	updates  chan feed.Resource

	// offline-only hooks, nil against Firebase
	saveStore func()
	saveCreds func()
}

func main() {
	usage := `Social feed & chat client.

Set OFFLINE=1 to run against the local data directory instead of Firebase.

Usage:
    socialfeed signup --email=<email> --password=<password> --username=<username>
    socialfeed login --email=<email> --password=<password>
    socialfeed logout
    socialfeed feed [--watch]
    socialfeed post --image=<file> [--caption=<caption>]
    socialfeed like <post_id>
    socialfeed chat <friend_id> [--watch]
    socialfeed send <friend_id> <message>

Options:
    -h --help               Show this screen.
    --version               Show version.
    --email=<email>
    --password=<password>
    --username=<username>   Display name for the new profile.
    --image=<file>          Image file to upload with the post.
    --caption=<caption>     Post caption.
    --watch                 Keep the view live until interrupted.`

	// glog reads its settings from the flag package.
	_ = flag.Set("logtostderr", "true")
	flag.CommandLine.Parse(nil)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], SocialfeedVersion)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newApp(ctx)
	defer glog.Flush()

	if signup_, _ := opts.Bool("signup"); signup_ {
		a.signup(ctx, opts)
	} else if login_, _ := opts.Bool("login"); login_ {
		a.login(ctx, opts)
	} else if logout_, _ := opts.Bool("logout"); logout_ {
		a.logout(ctx)
	} else if feed_, _ := opts.Bool("feed"); feed_ {
		watch, _ := opts.Bool("--watch")
		a.feed(ctx, watch)
	} else if post_, _ := opts.Bool("post"); post_ {
		a.post(ctx, opts)
	} else if like_, _ := opts.Bool("like"); like_ {
		a.like(ctx, opts)
	} else if chat_, _ := opts.Bool("chat"); chat_ {
		friendID, _ := opts.String("<friend_id>")
		watch, _ := opts.Bool("--watch")
		a.chat(ctx, friendID, watch)
	} else if send_, _ := opts.Bool("send"); send_ {
		a.send(ctx, opts)
	}
}

func newApp(ctx context.Context) *app {
	paths := config.DefaultPaths()
	config.EnsureDir(paths.DataDir)

	a := &app{
		paths:   paths,
		updates: make(chan feed.Resource, 8),
	}

	var (
		identity backend.Identity
		store    backend.DataStore
		objects  backend.ObjectStore
	)
	if config.Offline() {
		mem := memstore.NewStore()
		mem.LoadAll(paths.ProfilesFile, paths.PostsFile, paths.LikesFile, paths.MessagesFile)
		memIdent := memstore.NewIdentity()
		memIdent.Load(paths.CredentialsFile)

		identity = memIdent
		store = mem
		objects = memstore.NewObjectStore(filepath.Join(paths.DataDir, "uploads"))
		a.saveStore = func() {
			mem.SaveAll(paths.ProfilesFile, paths.PostsFile, paths.LikesFile, paths.MessagesFile)
		}
		a.saveCreds = func() { memIdent.Save(paths.CredentialsFile) }
	} else {
		fbApp := config.NewApp(ctx)
		identity = firebase.NewIdentity(config.WebAPIKey(), config.NewAuthClient(ctx, fbApp))
		store = firebase.NewDataStore(config.NewFirestoreClient(ctx, fbApp))
		objects = firebase.NewObjectStore(config.NewBucket(ctx, fbApp), config.StorageBucket())
	}

	a.sessions = session.NewManager(identity, store)
	a.sessions.Restore(session.Load(paths.SessionFile))
	a.client = feed.NewClient(store, objects, a.sessions, func(r feed.Resource) {
		select {
		case a.updates <- r:
		default:
		}
	})
	return a
}

func (a *app) persist() {
	if a.saveStore != nil {
		a.saveStore()
	}
}

// ===== auth commands =====

func (a *app) signup(ctx context.Context, opts docopt.Opts) {
	email, _ := opts.String("--email")
	password, _ := opts.String("--password")
	username, _ := opts.String("--username")

	sess, err := a.sessions.SignUp(ctx, email, password, username)
	if err != nil {
		Out.Printf("Sign up failed: %v", err)
		return
	}
	if a.saveCreds != nil {
		a.saveCreds()
	}
	a.persist()
	_ = session.Save(a.paths.SessionFile, sess)
	Out.Printf("Signed up and logged in as %s (%s)", username, sess.UserID)
}

func (a *app) login(ctx context.Context, opts docopt.Opts) {
	email, _ := opts.String("--email")
	password, _ := opts.String("--password")

	sess, err := a.sessions.SignIn(ctx, email, password)
	if err != nil {
		Out.Printf("Login failed: %v", err)
		return
	}
	_ = session.Save(a.paths.SessionFile, sess)
	Out.Printf("Logged in as %s", sess.Email)
}

func (a *app) logout(ctx context.Context) {
	if err := a.sessions.SignOut(ctx); err != nil {
		glog.Errorf("sign out: %v", err)
	}
	_ = session.Save(a.paths.SessionFile, nil)
	Out.Printf("Logged out")
}

// ===== feed commands =====

func (a *app) feed(ctx context.Context, watch bool) {
	closeFeed, err := a.client.OpenFeed(ctx)
	if err != nil {
		Out.Printf("Feed unavailable: %v", err)
		return
	}
	defer closeFeed()

	a.renderLoop(ctx, watch, feed.ResourcePosts, a.printFeed)
}

func (a *app) printFeed() {
	posts := a.client.Posts()
	if len(posts) == 0 {
		Out.Printf("No posts yet.")
		return
	}
	for _, p := range posts {
		liked := " "
		if a.client.LikedByMe(p.ID) {
			liked = "*"
		}
		Out.Printf("[%s] %s (%d likes)%s", p.ID, p.Username, len(p.Likes), liked)
		if p.Caption != "" {
			Out.Printf("    %s", p.Caption)
		}
		Out.Printf("    %s  %s", p.ImageURL, p.CreatedAt)
	}
}

func (a *app) post(ctx context.Context, opts docopt.Opts) {
	imagePath, _ := opts.String("--image")
	caption, _ := opts.String("--caption")

	data, err := os.ReadFile(imagePath)
	if err != nil {
		Out.Printf("Cannot read image: %v", err)
		return
	}
	if err := a.client.CreatePost(ctx, caption, filepath.Base(imagePath), data); err != nil {
		Out.Printf("Create post failed: %v", err)
		return
	}
	a.persist()
	Out.Printf("Posted.")
}

func (a *app) like(ctx context.Context, opts docopt.Opts) {
	postID, _ := opts.String("<post_id>")
	if err := a.client.ToggleLike(ctx, postID); err != nil {
		Out.Printf("Toggle like failed: %v", err)
		return
	}
	a.persist()
	Out.Printf("Toggled like on %s", postID)
}

// ===== chat commands =====

func (a *app) chat(ctx context.Context, friendID string, watch bool) {
	closeChat, err := a.client.OpenChat(ctx)
	if err != nil {
		Out.Printf("Chat unavailable: %v", err)
		return
	}
	defer closeChat()

	a.renderLoop(ctx, watch, feed.ResourceMessages, func() {
		msgs := a.client.Conversation(friendID)
		if len(msgs) == 0 {
			Out.Printf("No messages with %s yet.", friendID)
			return
		}
		for _, m := range msgs {
			Out.Printf("%s %s: %s", m.CreatedAt, m.SenderName, m.Content)
		}
	})
}

func (a *app) send(ctx context.Context, opts docopt.Opts) {
	friendID, _ := opts.String("<friend_id>")
	message, _ := opts.String("<message>")

	if err := a.client.SendMessage(ctx, friendID, message); err != nil {
		Out.Printf("Send failed: %v", err)
		return
	}
	a.persist()
	Out.Printf("Sent.")
}

// renderLoop waits for the initial reconcile, renders, and in watch mode
// keeps re-rendering on every update until interrupted.
func (a *app) renderLoop(ctx context.Context, watch bool, want feed.Resource, render func()) {
	timeout := time.After(30 * time.Second)
	for {
		select {
		case r := <-a.updates:
			if r != want {
				continue
			}
			render()
			if !watch {
				return
			}
			Out.Printf("---")
		case <-timeout:
			if !watch {
				Out.Printf("Timed out waiting for data.")
				return
			}
		case <-ctx.Done():
			return
		case <-interrupted():
			return
		}
	}
}

var sigCh chan os.Signal

func interrupted() <-chan os.Signal {
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	return sigCh
}
