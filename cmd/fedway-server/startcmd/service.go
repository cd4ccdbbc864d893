/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedway/fedway/internal/pkg/log"
	federrors "github.com/fedway/fedway/pkg/errors"
	"github.com/fedway/fedway/pkg/federation"
	"github.com/fedway/fedway/pkg/httpserver"
	"github.com/fedway/fedway/pkg/nodeinfo"
	storespi "github.com/fedway/fedway/pkg/store/spi"
	"github.com/fedway/fedway/pkg/vocab"
)

const (
	actorPath       = "/services/{handle}"
	inboxPath       = "/services/{handle}/inbox"
	sharedInboxPath = "/inbox"
	outboxPath      = "/services/{handle}/outbox"
	followersPath   = "/services/{handle}/followers"
	followingPath   = "/services/{handle}/following"
	notePath        = "/services/{handle}/notes/{id}"
	nodeInfoPath    = "/nodeinfo/2.1"

	softwareName       = "fedway"
	softwareRepository = "https://github.com/fedway/fedway"
)

// usageStats is the cache key under which the NodeInfo usage statistics are stored.
const usageStats = "usage-stats"

// service is the ActivityPub service actor exposed by this server. It accepts
// Follow requests, stores the Note objects of incoming Create activities and
// reports usage statistics through NodeInfo.
type service struct {
	handle     string
	privateKey *rsa.PrivateKey
	store      storespi.Store

	// mutex serializes read-modify-write updates of the followers list and the
	// post counter.
	mutex sync.Mutex
}

func newService(handle string, privateKey *rsa.PrivateKey, store storespi.Store) *service {
	return &service{
		handle:     handle,
		privateKey: privateKey,
		store:      store,
	}
}

// register wires the service into the federation registry: the actor and its
// key pair, the Note object, the collections, the inbox listeners and the
// NodeInfo dispatcher.
func (s *service) register(fed *federation.Federation, usage usageCache) error {
	actorSetters, err := fed.SetActorDispatcher(actorPath, s.getActor)
	if err != nil {
		return fmt.Errorf("set actor dispatcher: %w", err)
	}

	actorSetters.SetKeyPairDispatcher(s.getKeyPair)

	if _, err := fed.SetObjectDispatcher(vocab.TypeNote, notePath, s.getNote); err != nil {
		return fmt.Errorf("set object dispatcher: %w", err)
	}

	if _, err := fed.SetOutboxDispatcher(outboxPath, s.emptyCollection); err != nil {
		return fmt.Errorf("set outbox dispatcher: %w", err)
	}

	followersSetters, err := fed.SetFollowersDispatcher(followersPath, s.getFollowers)
	if err != nil {
		return fmt.Errorf("set followers dispatcher: %w", err)
	}

	followersSetters.SetCounter(s.countFollowers).SetFirstCursor(firstPageCursor)

	if _, err := fed.SetFollowingDispatcher(followingPath, s.emptyCollection); err != nil {
		return fmt.Errorf("set following dispatcher: %w", err)
	}

	inboxSetter, err := fed.SetInboxListeners(inboxPath, sharedInboxPath)
	if err != nil {
		return fmt.Errorf("set inbox listeners: %w", err)
	}

	inboxSetter.OnError(func(_ *federation.RequestContext, err error) {
		logger.Warn("Error handling inbox activity", log.WithError(err))
	})

	if err := inboxSetter.On(vocab.TypeFollow, s.handleFollow); err != nil {
		return fmt.Errorf("set Follow listener: %w", err)
	}

	if err := inboxSetter.On(vocab.TypeUndo, s.handleUndo); err != nil {
		return fmt.Errorf("set Undo listener: %w", err)
	}

	if err := inboxSetter.On(vocab.TypeCreate, s.handleCreate); err != nil {
		return fmt.Errorf("set Create listener: %w", err)
	}

	if err := fed.SetNodeInfoDispatcher(nodeInfoPath, s.nodeInfoDispatcher(usage)); err != nil {
		return fmt.Errorf("set NodeInfo dispatcher: %w", err)
	}

	return nil
}

func (s *service) getActor(rc *federation.RequestContext, handle string,
	key *vocab.PublicKeyType) (*vocab.ActorType, error) {
	if handle != s.handle {
		return nil, nil
	}

	actorURI, err := rc.ActorURI(handle)
	if err != nil {
		return nil, err
	}

	inboxURI, err := rc.InboxURI(handle)
	if err != nil {
		return nil, err
	}

	sharedInboxURI, err := rc.InboxURI("")
	if err != nil {
		return nil, err
	}

	outboxURI, err := rc.OutboxURI(handle)
	if err != nil {
		return nil, err
	}

	followersURI, err := rc.FollowersURI(handle)
	if err != nil {
		return nil, err
	}

	followingURI, err := rc.FollowingURI(handle)
	if err != nil {
		return nil, err
	}

	return &vocab.ActorType{
		ID:                vocab.NewURLProperty(actorURI),
		Type:              vocab.NewTypeProperty(vocab.TypeService),
		PreferredUsername: handle,
		Inbox:             vocab.NewURLProperty(inboxURI),
		Outbox:            vocab.NewURLProperty(outboxURI),
		Followers:         vocab.NewURLProperty(followersURI),
		Following:         vocab.NewURLProperty(followingURI),
		Endpoints: &vocab.EndpointsType{
			SharedInbox: vocab.NewURLProperty(sharedInboxURI),
		},
		PublicKey: key,
	}, nil
}

func (s *service) getKeyPair(_ *federation.Context, handle string) (*federation.KeyPair, error) {
	if handle != s.handle {
		return nil, nil
	}

	return &federation.KeyPair{
		PrivateKey: s.privateKey,
		PublicKey:  &s.privateKey.PublicKey,
	}, nil
}

// getNote serves a Note that was previously stored by the Create listener.
func (s *service) getNote(_ *federation.RequestContext, values map[string]string) (vocab.Document, error) {
	noteBytes, err := s.store.Get(noteKey(values["id"]))
	if err != nil {
		if errors.Is(err, federrors.ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("get note [%s]: %w", values["id"], err)
	}

	doc := vocab.Document{}
	if err := json.Unmarshal(noteBytes, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal note [%s]: %w", values["id"], err)
	}

	return doc, nil
}

func (s *service) getFollowers(_ *federation.RequestContext, handle,
	_ string) (*federation.CollectionPage, error) {
	if handle != s.handle {
		return nil, nil
	}

	followers, err := s.loadFollowers()
	if err != nil {
		return nil, err
	}

	items := make([]interface{}, len(followers))

	for i, follower := range followers {
		items[i] = follower
	}

	return &federation.CollectionPage{Items: items}, nil
}

func (s *service) countFollowers(_ *federation.RequestContext, handle string) (*int, error) {
	if handle != s.handle {
		return nil, nil
	}

	followers, err := s.loadFollowers()
	if err != nil {
		return nil, err
	}

	count := len(followers)

	return &count, nil
}

// firstPageCursor points the collection index at its single page. The followers
// collection is small enough to be served as one page.
func firstPageCursor(*federation.RequestContext, string) (*string, error) {
	cursor := ""

	return &cursor, nil
}

func (s *service) emptyCollection(_ *federation.RequestContext, handle,
	_ string) (*federation.CollectionPage, error) {
	if handle != s.handle {
		return nil, nil
	}

	return &federation.CollectionPage{}, nil
}

// handleFollow adds the actor of the Follow to the followers list and replies
// with an Accept addressed to the follower's inbox.
func (s *service) handleFollow(rc *federation.RequestContext, activity *vocab.ActivityType) error {
	followerIRI := activity.Actor().URL()
	if followerIRI == nil {
		return errors.New("Follow activity has no actor")
	}

	if err := s.addFollower(followerIRI.String()); err != nil {
		return fmt.Errorf("add follower [%s]: %w", followerIRI, err)
	}

	logger.Info("Added follower", logfields.WithActorIRI(followerIRI))

	follower, err := rc.GetSignedKeyOwner()
	if err != nil {
		return fmt.Errorf("resolve follower actor [%s]: %w", followerIRI, err)
	}

	if follower == nil {
		logger.Warn("Not sending Accept since the Follow request was not signed",
			logfields.WithActorIRI(followerIRI))

		return nil
	}

	serviceIRI, err := rc.ActorURI(s.handle)
	if err != nil {
		return err
	}

	followDoc, err := vocab.MarshalToDoc(activity)
	if err != nil {
		return fmt.Errorf("marshal Follow activity: %w", err)
	}

	accept := vocab.NewActivity(vocab.TypeAccept,
		vocab.WithActor(serviceIRI),
		vocab.WithObjectDoc(followDoc),
		vocab.WithTo(followerIRI),
	)

	return rc.SendActivity(rc.Request().Context(), &federation.Sender{Handle: s.handle},
		[]*vocab.ActorType{follower}, accept)
}

// handleUndo removes the actor of the undone Follow from the followers list.
func (s *service) handleUndo(_ *federation.RequestContext, activity *vocab.ActivityType) error {
	followerIRI := activity.Actor().URL()
	if followerIRI == nil {
		return errors.New("Undo activity has no actor")
	}

	if err := s.removeFollower(followerIRI.String()); err != nil {
		return fmt.Errorf("remove follower [%s]: %w", followerIRI, err)
	}

	logger.Info("Removed follower", logfields.WithActorIRI(followerIRI))

	return nil
}

// handleCreate stores the Note carried by the Create activity so that it may be
// served by the Note object dispatcher, and counts it as a local post.
func (s *service) handleCreate(_ *federation.RequestContext, activity *vocab.ActivityType) error {
	obj, ok := activity.Object().(map[string]interface{})
	if !ok {
		logger.Debug("Ignoring Create activity without an embedded object",
			logfields.WithActivityID(activity.ID().String()))

		return nil
	}

	id, ok := obj["id"].(string)
	if !ok || id == "" {
		return errors.New("Create activity object has no 'id' property")
	}

	objBytes, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal object [%s]: %w", id, err)
	}

	if err := s.store.Put(noteKey(id), objBytes); err != nil {
		return fmt.Errorf("store object [%s]: %w", id, err)
	}

	if err := s.incrementPostCount(); err != nil {
		return fmt.Errorf("increment post count: %w", err)
	}

	logger.Info("Stored object from Create activity", logfields.WithActivityID(activity.ID().String()))

	return nil
}

// usageCache returns the current NodeInfo usage statistics. The statistics are
// computed in the background so that serving NodeInfo does not hit the database.
type usageCache interface {
	Get(key interface{}) (interface{}, error)
}

func (s *service) nodeInfoDispatcher(usage usageCache) federation.NodeInfoDispatcher {
	return func(_ *federation.RequestContext) (*nodeinfo.NodeInfo, error) {
		u, err := usage.Get(usageStats)
		if err != nil {
			return nil, fmt.Errorf("get usage statistics: %w", err)
		}

		version := httpserver.BuildVersion
		if version == "" {
			version = "dev"
		}

		return &nodeinfo.NodeInfo{
			Version: nodeinfo.V2_1,
			Software: nodeinfo.Software{
				Name:       softwareName,
				Version:    version,
				Repository: softwareRepository,
			},
			Protocols: []string{nodeinfo.ActivityPubProtocol},
			Services: nodeinfo.Services{
				Inbound:  []string{},
				Outbound: []string{},
			},
			Usage: *u.(*nodeinfo.Usage),
		}, nil
	}
}

// loadUsage computes the NodeInfo usage statistics. It is invoked by the
// refreshing cache, not directly by request handlers.
func (s *service) loadUsage(interface{}) (interface{}, error) {
	postCount, err := s.loadPostCount()
	if err != nil {
		return nil, err
	}

	return &nodeinfo.Usage{
		Users: nodeinfo.Users{
			Total: 1,
		},
		LocalPosts: postCount,
	}, nil
}

func (s *service) addFollower(followerIRI string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	followers, err := s.loadFollowers()
	if err != nil {
		return err
	}

	for _, follower := range followers {
		if follower == followerIRI {
			return nil
		}
	}

	return s.storeFollowers(append(followers, followerIRI))
}

func (s *service) removeFollower(followerIRI string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	followers, err := s.loadFollowers()
	if err != nil {
		return err
	}

	remaining := make([]string, 0, len(followers))

	for _, follower := range followers {
		if follower != followerIRI {
			remaining = append(remaining, follower)
		}
	}

	if len(remaining) == len(followers) {
		return nil
	}

	return s.storeFollowers(remaining)
}

func (s *service) loadFollowers() ([]string, error) {
	followersBytes, err := s.store.Get(followersKey(s.handle))
	if err != nil {
		if errors.Is(err, federrors.ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("get followers: %w", err)
	}

	var followers []string
	if err := json.Unmarshal(followersBytes, &followers); err != nil {
		return nil, fmt.Errorf("unmarshal followers: %w", err)
	}

	return followers, nil
}

func (s *service) storeFollowers(followers []string) error {
	followersBytes, err := json.Marshal(followers)
	if err != nil {
		return fmt.Errorf("marshal followers: %w", err)
	}

	if err := s.store.Put(followersKey(s.handle), followersBytes); err != nil {
		return fmt.Errorf("store followers: %w", err)
	}

	return nil
}

func (s *service) incrementPostCount() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	count, err := s.loadPostCount()
	if err != nil {
		return err
	}

	countBytes, err := json.Marshal(count + 1)
	if err != nil {
		return err
	}

	return s.store.Put(postCountKey(), countBytes)
}

func (s *service) loadPostCount() (int, error) {
	countBytes, err := s.store.Get(postCountKey())
	if err != nil {
		if errors.Is(err, federrors.ErrNotFound) {
			return 0, nil
		}

		return 0, fmt.Errorf("get post count: %w", err)
	}

	var count int
	if err := json.Unmarshal(countBytes, &count); err != nil {
		return 0, fmt.Errorf("unmarshal post count: %w", err)
	}

	return count, nil
}

func noteKey(id string) storespi.Key {
	return storespi.NewKey("notes", id)
}

func followersKey(handle string) storespi.Key {
	return storespi.NewKey("followers", handle)
}

func postCountKey() storespi.Key {
	return storespi.NewKey("stats", "local-posts")
}
