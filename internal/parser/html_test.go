package parser

import (
	"testing"

	"github.com/algolog/stats-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const codechefPage = `<html><body>
<div class="rating-header">
  <div class="rating-number">1850<sup>?</sup></div>
  <div>(Div 2)</div>
  <small>(Highest Rating 1932)</small>
</div>
<span class="rating">4&#9733;</span>
<div class="rating-ranks"><ul>
  <li><strong>5,120</strong> Global Rank</li>
  <li><strong>812</strong> Country Rank</li>
</ul></div>
<section><h3>Total Problems Solved: 245</h3></section>
</body></html>`

func TestParseCodeChef(t *testing.T) {
	stats, err := ParseCodeChef(rawBody(models.PlatformCodeChef, "chef", codechefPage))
	require.NoError(t, err)
	cc := stats.CodeChef
	require.NotNil(t, cc)
	assert.Equal(t, "chef", cc.Username)
	assert.Equal(t, 1850, cc.Rating)
	assert.Equal(t, 1932, cc.HighestRating)
	assert.Equal(t, "Div 2", cc.Division)
	assert.Equal(t, "4★", cc.Stars)
	assert.Equal(t, 5120, cc.GlobalRank)
	assert.Equal(t, 812, cc.CountryRank)
	assert.Equal(t, 245, cc.FullySolved)
}

func TestParseCodeChefCoercion(t *testing.T) {
	t.Run("non numeric rating fails", func(t *testing.T) {
		page := `<div class="rating-number">Unrated</div><h3>Total Problems Solved: 3</h3>`
		_, err := ParseCodeChef(rawBody(models.PlatformCodeChef, "chef", page))
		requireReason(t, err, ReasonInvalidRating)
	})

	t.Run("non numeric solved count is zero", func(t *testing.T) {
		page := `<div class="rating-number">1400</div><h3>Total Problems Solved: many</h3>`
		stats, err := ParseCodeChef(rawBody(models.PlatformCodeChef, "chef", page))
		require.NoError(t, err)
		assert.Equal(t, 0, stats.CodeChef.FullySolved)
		assert.Equal(t, 1400, stats.CodeChef.Rating)
	})

	t.Run("missing anchor", func(t *testing.T) {
		_, err := ParseCodeChef(rawBody(models.PlatformCodeChef, "chef", `<html><body><p>new layout</p></body></html>`))
		requireReason(t, err, ReasonLayoutChanged)
	})
}

func TestParseHackerRank(t *testing.T) {
	page := `<div class="hacker-badges">
	  <div class="hacker-badge"><div class="badge-title">Problem Solving</div>
	    <svg class="badge-star"></svg><svg class="badge-star"></svg><svg class="badge-star"></svg></div>
	  <div class="hacker-badge"><div class="badge-title"> Python </div><svg class="badge-star"></svg></div>
	</div>`

	stats, err := ParseHackerRank(rawBody(models.PlatformHackerRank, "hr", page))
	require.NoError(t, err)
	assert.Equal(t, []models.Badge{
		{Name: "Problem Solving", Stars: 3},
		{Name: "Python", Stars: 1},
	}, stats.HackerRank.Badges)
}

func TestParseHackerRankEmptyContainer(t *testing.T) {
	stats, err := ParseHackerRank(rawBody(models.PlatformHackerRank, "hr", `<div class="hacker-badges"></div>`))
	require.NoError(t, err)
	assert.Empty(t, stats.HackerRank.Badges)
}

func TestParseHackerRankSelectorChanged(t *testing.T) {
	page := `<div class="profile-badges-v2"><div class="badge-card">Problem Solving</div></div>`
	_, err := ParseHackerRank(rawBody(models.PlatformHackerRank, "hr", page))
	requireReason(t, err, ReasonLayoutChanged)
}

func TestParseSkillRack(t *testing.T) {
	page := `<html><body>
	<div class="statistic"><div class="value">1,024</div><div class="label">RANK</div></div>
	<div class="statistic"><div class="value">512</div><div class="label">PROGRAMS SOLVED</div></div>
	<div class="statistic"><div class="value">300</div><div class="label">Java</div></div>
	<div class="statistic"><div class="value">--</div><div class="label">PYTHON3</div></div>
	<div class="statistic"><div class="value">9</div><div class="label">CODE TRACK</div></div>
	<div class="ui brown card"><div class="content"><b>Java Expert</b> issued 05-03-2024 10:30
	  <a href="https://www.skillrack.com/cert/1">view</a></div></div>
	<div class="ui brown card"><div class="content"><b>No Link</b></div></div>
	</body></html>`

	stats, err := ParseSkillRack(rawBody(models.PlatformSkillRack, "https://www.skillrack.com/profile/1/ab", page))
	require.NoError(t, err)
	sr := stats.SkillRack
	assert.Equal(t, 1024, sr.Rank)
	assert.Equal(t, 512, sr.ProgramsSolved)
	assert.Equal(t, map[string]int{"JAVA": 300, "PYTHON3": 0}, sr.Languages)
	require.Len(t, sr.Certificates, 1)
	assert.Equal(t, models.Certificate{Title: "Java Expert", Date: "05-03-2024 10:30", Link: "https://www.skillrack.com/cert/1"}, sr.Certificates[0])
}

func TestParseSkillRackLayoutChanged(t *testing.T) {
	_, err := ParseSkillRack(rawBody(models.PlatformSkillRack, "x", `<html><body><table></table></body></html>`))
	requireReason(t, err, ReasonLayoutChanged)
}
