package hue

import (
	"context"
	"device-adapter-core/internal/domain/model"
	"fmt"
	"sort"
	"strconv"

	"github.com/amimof/huego"
	"github.com/rs/zerolog"
)

type session struct {
	host   string
	bridge *huego.Bridge
	logger zerolog.Logger
}

func (s *session) Host() string {
	return s.host
}

// RunScene recalls the named scene on the named group.
func (s *session) RunScene(ctx context.Context, groupName, sceneName string) error {
	groups, err := s.bridge.GetGroupsContext(ctx)
	if err != nil {
		return classify(err)
	}
	var group *huego.Group
	for i := range groups {
		if groups[i].Name == groupName {
			group = &groups[i]
			break
		}
	}
	if group == nil {
		return fmt.Errorf("%w: %q", model.ErrGroupNotFound, groupName)
	}

	scenes, err := s.bridge.GetScenesContext(ctx)
	if err != nil {
		return classify(err)
	}
	scene := pickScene(scenes, group, sceneName)
	if scene == nil {
		return fmt.Errorf("%w: %q in group %q", model.ErrSceneNotFound, sceneName, groupName)
	}

	if _, err := s.bridge.RecallSceneContext(ctx, scene.ID, group.ID); err != nil {
		return classify(err)
	}
	s.logger.Info().
		Str("host", s.host).
		Str("group", groupName).
		Str("scene", sceneName).
		Msg("Scene activated")
	return nil
}

// pickScene returns the scene named name that belongs to group. A single
// scene with that name is used as is. Otherwise a scene bound to the group
// wins, then one whose lights are exactly the group's lights.
func pickScene(scenes []huego.Scene, group *huego.Group, name string) *huego.Scene {
	var candidates []*huego.Scene
	for i := range scenes {
		if scenes[i].Name == name {
			candidates = append(candidates, &scenes[i])
		}
	}
	switch len(candidates) {
	case 0:
		return nil
	case 1:
		return candidates[0]
	}

	groupID := strconv.Itoa(group.ID)
	for _, sc := range candidates {
		if sc.Group == groupID {
			return sc
		}
	}
	for _, sc := range candidates {
		if sameLights(sc.Lights, group.Lights) {
			return sc
		}
	}
	return nil
}

func sameLights(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
