package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/logging"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalytics_PublishedTargetsAndMetrics(t *testing.T) {
	e := newEnv(t)
	_, fb, li := launchDay(t, e)
	_, err := e.dispatcher(nil).RunDueBatch(context.Background())
	require.NoError(t, err)

	svc := NewAnalyticsService(e.db, e.rm, e.adapters, e.vault, logging.Nop{})

	list, err := svc.ListPublishedTargets(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	tokens := map[string]string{}
	for _, v := range list {
		tokens[v.AccountID] = v.AccessToken
		assert.Equal(t, e.now, v.PublishedAt)
	}
	assert.Equal(t, "fb-token", tokens[fb.ID])
	assert.Equal(t, "li-token", tokens[li.ID])

	m, err := svc.FetchTargetMetrics(context.Background(), list[0].TargetID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(list[0].PlatformPostID)), m.Likes)

	_, err = svc.FetchTargetMetrics(context.Background(), "no-such-target")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestAnalytics_SkipsUndecryptableTokens(t *testing.T) {
	e := newEnv(t)
	_, fb, _ := launchDay(t, e)
	_, err := e.dispatcher(nil).RunDueBatch(context.Background())
	require.NoError(t, err)

	sealed := e.mem.accounts[fb.ID].AccessToken
	e.mem.accounts[fb.ID].AccessToken = sealed[:len(sealed)-4] + "AAAA"

	list, err := NewAnalyticsService(e.db, e.rm, e.adapters, e.vault, logging.Nop{}).ListPublishedTargets(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.PlatformLinkedIn, list[0].Platform)
}
